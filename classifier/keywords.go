package classifier

import "ransomwatch/models"

// The tables below are ordered: sector ties and every first-match lookup
// resolve by position, so entries must not be moved into maps.

type sectorRule struct {
	sector   models.Sector
	keywords []string
}

var sectorRules = []sectorRule{
	{models.SectorFinance, []string{
		"bank", "banka", "finance", "finans", "credit", "kredi", "loan",
		"insurance", "sigorta", "investment", "yatırım", "capital", "sermaye",
		"payment", "ödeme", "card", "kart", "money", "para", "currency", "döviz",
		"crypto", "kripto", "bitcoin", "ethereum", "wallet", "cüzdan",
	}},
	{models.SectorHealth, []string{
		"health", "sağlık", "medical", "tıbbi", "hospital", "hastane", "clinic",
		"klinik", "pharmacy", "eczane", "drug", "ilaç", "medicine", "tıp",
		"doctor", "doktor", "nurse", "hemşire", "patient", "hasta", "treatment",
		"tedavi", "therapy", "terapi", "surgery", "cerrahi", "dental", "diş",
	}},
	{models.SectorEducation, []string{
		"education", "eğitim", "school", "okul", "university", "üniversite",
		"college", "kolej", "academy", "akademi", "institute", "enstitü",
		"training", "course", "kurs", "student", "öğrenci", "teacher",
		"öğretmen", "professor", "profesör", "research", "araştırma", "study",
		"çalışma", "learning", "öğrenme", "knowledge", "bilgi",
	}},
	{models.SectorTechnology, []string{
		"tech", "teknoloji", "software", "yazılım", "hardware", "donanım",
		"computer", "bilgisayar", "internet", "web", "ağ", "network",
		"data", "veri", "cloud", "bulut", "ai", "artificial", "yapay", "intelligence",
		"machine", "makine", "learning", "öğrenme", "mobile", "mobil", "app",
		"uygulama", "digital", "dijital", "cyber", "siber", "security", "güvenlik",
	}},
	{models.SectorECommerce, []string{
		"ecommerce", "e-ticaret", "shop", "mağaza", "store", "dükkan", "market",
		"pazar", "retail", "perakende", "wholesale", "toptan", "sale", "satış",
		"buy", "satın", "sell", "sat", "product", "ürün", "service", "hizmet",
		"customer", "müşteri", "order", "sipariş", "delivery", "teslimat",
	}},
	{models.SectorEnergy, []string{
		"energy", "enerji", "power", "güç", "electric", "elektrik", "gas", "gaz",
		"oil", "petrol", "fuel", "yakıt", "renewable", "yenilenebilir", "solar",
		"güneş", "wind", "rüzgar", "nuclear", "nükleer", "coal", "kömür",
		"electricity", "utility", "hizmet",
	}},
	{models.SectorTransport, []string{
		"transport", "ulaştırma", "logistics", "lojistik", "shipping", "nakliye",
		"delivery", "teslimat", "cargo", "kargo", "freight", "yük", "truck",
		"kamyon", "car", "araç", "vehicle", "taşıt", "airline", "havayolu",
		"railway", "demiryolu", "port", "liman", "airport", "havaalanı",
	}},
	{models.SectorTourism, []string{
		"tourism", "turizm", "travel", "seyahat", "hotel", "otel", "restaurant",
		"restoran", "vacation", "tatil", "holiday", "bayram",
		"trip", "gezi", "journey", "yolculuk", "accommodation", "konaklama",
		"booking", "rezervasyon", "ticket", "bilet", "flight", "uçuş",
	}},
	{models.SectorRealEstate, []string{
		"real estate", "gayrimenkul", "property", "mülk", "house", "ev",
		"apartment", "apartman", "building", "bina", "construction", "inşaat",
		"development", "geliştirme", "rent", "kira", "sale", "satış",
		"investment", "yatırım", "land", "arazi", "commercial", "ticari",
	}},
	{models.SectorMedia, []string{
		"media", "medya", "news", "haber", "tv", "televizyon", "radio", "radyo",
		"newspaper", "gazete", "magazine", "dergi", "publishing", "yayıncılık",
		"broadcast", "yayın", "entertainment", "eğlence", "film", "movie",
		"cinema", "sinema", "music", "müzik", "art", "sanat", "culture", "kültür",
	}},
}

type sizeRule struct {
	size     models.CompanySize
	keywords []string
}

var sizeRules = []sizeRule{
	{models.SizeSmall, []string{"startup", "başlangıç", "küçük", "small", "mini", "micro"}},
	{models.SizeMedium, []string{"orta", "medium", "mid", "orta ölçek", "medium-sized"}},
	{models.SizeLarge, []string{"büyük", "large", "enterprise", "kurumsal", "corporate", "global", "küresel"}},
}

type impactRule struct {
	level    models.ImpactLevel
	keywords []string
}

var impactRules = []impactRule{
	{models.ImpactLow, []string{"minor", "küçük", "low", "düşük", "minimal"}},
	{models.ImpactMedium, []string{"medium", "orta", "moderate", "orta düzey"}},
	{models.ImpactHigh, []string{"high", "yüksek", "major", "büyük", "significant", "önemli"}},
	{models.ImpactCritical, []string{"critical", "kritik", "severe", "ciddi", "catastrophic", "felaket"}},
}

type dataTypeRule struct {
	dataType models.DataType
	keywords []string
}

var dataTypeRules = []dataTypeRule{
	{models.DataPersonal, []string{"personal", "kişisel", "identity", "kimlik", "name", "isim", "address", "adres", "phone", "telefon"}},
	{models.DataFinancial, []string{"financial", "finansal", "credit", "kredi", "card", "kart", "bank", "banka", "money", "para"}},
	{models.DataCommercial, []string{"commercial", "ticari", "business", "iş", "trade", "ticaret", "customer", "müşteri", "client", "müvekkil"}},
	{models.DataHealth, []string{"health", "sağlık", "medical", "tıbbi", "patient", "hasta", "healthcare", "sağlık hizmeti"}},
	{models.DataEducation, []string{"education", "eğitim", "student", "öğrenci", "academic", "akademik", "school", "okul"}},
}

// sizeProfile is the coarse revenue/headcount proxy attached to each size bucket.
type sizeProfile struct {
	revenueRange  string
	employeeCount int
}

var sizeProfiles = map[models.CompanySize]sizeProfile{
	models.SizeSmall:  {"0-1M", 50},
	models.SizeMedium: {"1M-10M", 500},
	models.SizeLarge:  {"10M-100M", 5000},
}

// titleStopwords are dropped from a post title before its first token is
// taken as the company name.
var titleStopwords = map[string]struct{}{
	"data": {}, "breach": {}, "hack": {}, "leak": {},
	"sızıntı": {}, "veri": {}, "ihlal": {}, "saldırı": {},
}
