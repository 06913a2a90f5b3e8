package models

import "strings"

// Sector is the closed set of industry sectors a disclosure is classified into.
type Sector string

const (
	SectorFinance    Sector = "finance"
	SectorHealth     Sector = "health"
	SectorEducation  Sector = "education"
	SectorTechnology Sector = "technology"
	SectorECommerce  Sector = "e-commerce"
	SectorEnergy     Sector = "energy"
	SectorTransport  Sector = "transport"
	SectorTourism    Sector = "tourism"
	SectorRealEstate Sector = "real-estate"
	SectorMedia      Sector = "media"
	SectorOther      Sector = "other"
	SectorUnknown    Sector = "unknown"
)

// Sectors lists every sector the classifier may return.
var Sectors = []Sector{
	SectorFinance, SectorHealth, SectorEducation, SectorTechnology, SectorECommerce,
	SectorEnergy, SectorTransport, SectorTourism, SectorRealEstate, SectorMedia, SectorOther,
}

var sectorAliases = map[string]Sector{
	"finance": SectorFinance, "finans": SectorFinance, "financial": SectorFinance,
	"health": SectorHealth, "sağlık": SectorHealth, "saglik": SectorHealth, "healthcare": SectorHealth,
	"education": SectorEducation, "eğitim": SectorEducation, "egitim": SectorEducation,
	"technology": SectorTechnology, "teknoloji": SectorTechnology, "tech": SectorTechnology,
	"e-commerce": SectorECommerce, "e-ticaret": SectorECommerce, "ecommerce": SectorECommerce, "retail": SectorECommerce,
	"energy": SectorEnergy, "enerji": SectorEnergy,
	"transport": SectorTransport, "ulaştırma": SectorTransport, "ulastirma": SectorTransport, "logistics": SectorTransport,
	"tourism": SectorTourism, "turizm": SectorTourism,
	"real-estate": SectorRealEstate, "real estate": SectorRealEstate, "gayrimenkul": SectorRealEstate,
	"media": SectorMedia, "medya": SectorMedia,
	"other": SectorOther, "diğer": SectorOther, "diger": SectorOther,
}

// ParseSector maps any sector spelling seen in stored data or the source
// application to its canonical variant. Unmapped strings are SectorUnknown.
func ParseSector(s string) Sector {
	if v, ok := sectorAliases[normalizeLabel(s)]; ok {
		return v
	}
	return SectorUnknown
}

// CompanySize is a coarse company-size bucket.
type CompanySize string

const (
	SizeSmall   CompanySize = "small"
	SizeMedium  CompanySize = "medium"
	SizeLarge   CompanySize = "large"
	SizeUnknown CompanySize = "unknown"
)

var sizeAliases = map[string]CompanySize{
	"small": SizeSmall, "küçük": SizeSmall, "kucuk": SizeSmall,
	"medium": SizeMedium, "orta": SizeMedium, "mid": SizeMedium,
	"large": SizeLarge, "büyük": SizeLarge, "buyuk": SizeLarge, "enterprise": SizeLarge,
}

func ParseCompanySize(s string) CompanySize {
	if v, ok := sizeAliases[normalizeLabel(s)]; ok {
		return v
	}
	return SizeUnknown
}

// ImpactLevel is the severity of a disclosure.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
	ImpactUnknown  ImpactLevel = "unknown"
)

var impactAliases = map[string]ImpactLevel{
	"low": ImpactLow, "düşük": ImpactLow, "dusuk": ImpactLow, "minor": ImpactLow,
	"medium": ImpactMedium, "orta": ImpactMedium, "moderate": ImpactMedium,
	"high": ImpactHigh, "yüksek": ImpactHigh, "yuksek": ImpactHigh, "major": ImpactHigh,
	"critical": ImpactCritical, "kritik": ImpactCritical, "severe": ImpactCritical,
}

// ParseImpactLevel accepts the mixed Turkish/English casing of the source,
// e.g. "Kritik" and "Critical" both map to ImpactCritical.
func ParseImpactLevel(s string) ImpactLevel {
	if v, ok := impactAliases[normalizeLabel(s)]; ok {
		return v
	}
	return ImpactUnknown
}

// DataType is the category of data a disclosure claims was leaked.
type DataType string

const (
	DataPersonal   DataType = "personal"
	DataFinancial  DataType = "financial"
	DataCommercial DataType = "commercial"
	DataHealth     DataType = "health"
	DataEducation  DataType = "education"
	DataGeneral    DataType = "general"
	DataUnknown    DataType = "unknown"
)

var dataTypeAliases = map[string]DataType{
	"personal": DataPersonal, "kişisel": DataPersonal, "kisisel": DataPersonal,
	"financial": DataFinancial, "finansal": DataFinancial,
	"commercial": DataCommercial, "ticari": DataCommercial,
	"health": DataHealth, "sağlık": DataHealth, "saglik": DataHealth,
	"education": DataEducation, "eğitim": DataEducation, "egitim": DataEducation,
	"general": DataGeneral, "genel": DataGeneral,
}

func ParseDataType(s string) DataType {
	if v, ok := dataTypeAliases[normalizeLabel(s)]; ok {
		return v
	}
	return DataUnknown
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
