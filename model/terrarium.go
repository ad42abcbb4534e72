package model

// Terrarium описывает технические данные террариума
type Terrarium struct {
	ID        string    `json:"id" conform:"trim" validate:"required"`
	Name      string    `json:"name" conform:"trim" validate:"required"`
	PlantType PlantType `json:"plantType"`
	// Адрес API устройств террариума, например http://192.168.0.10:5000
	Address     string `json:"address" conform:"trim" validate:"required,httpurl"`
	LedColor    string `json:"ledColor" conform:"trim,upper"`
	Description string `json:"description" conform:"trim"`
}

// Profile описание растения террариума
func (m Terrarium) Profile() PlantProfile {
	plantType := m.PlantType
	if plantType == "" {
		plantType = PlantUnspecified
	}
	return PlantProfile{Name: m.Name, PlantType: plantType}
}
