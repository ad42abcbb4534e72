package model

import "strings"

// PlantType тип растения
type PlantType string

const (
	PlantHerb        PlantType = "herb"
	PlantSucculent   PlantType = "succulent"
	PlantFoliage     PlantType = "foliage"
	PlantUnspecified PlantType = "unspecified"
)

// Названия типов растений, встречающиеся у клиентов
var plantTypeAliases = map[string]PlantType{
	"herb":        PlantHerb,
	"herbs":       PlantHerb,
	"허브":          PlantHerb,
	"허브류":         PlantHerb,
	"succulent":   PlantSucculent,
	"succulents":  PlantSucculent,
	"다육":          PlantSucculent,
	"다육류":         PlantSucculent,
	"다육식물":        PlantSucculent,
	"foliage":     PlantFoliage,
	"관엽":          PlantFoliage,
	"관엽류":         PlantFoliage,
	"관엽식물":        PlantFoliage,
	"unspecified": PlantUnspecified,
}

// ParsePlantType распознаёт тип растения. Нераспознанное значение - PlantUnspecified
func ParsePlantType(s string) PlantType {
	if t, ok := plantTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return PlantUnspecified
}

// PlantProfile описание растения террариума
type PlantProfile struct {
	Name      string    `json:"name"`
	PlantType PlantType `json:"plantType"`
}
