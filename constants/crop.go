package constants

// CropCatalogNames maps the crop names offered to farmers onto the item names the
// yield model was trained on. Crops missing from this table are passed through as-is.
var CropCatalogNames = map[string]string{
	"Rice":      "Rice, paddy",
	"Wheat":     "Wheat",
	"Cotton":    "Cotton",
	"Sugarcane": "Sugar cane",
	"Maize":     "Maize",
	"Soybean":   "Soybeans",
	"Potato":    "Potatoes",
	"Tomato":    "Tomatoes",
}

// ModelYear is the fixed year feature fed to the yield model.
const ModelYear = 2020
