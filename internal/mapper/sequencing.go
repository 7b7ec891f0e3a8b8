package mapper

// testResultSequencing fixes the display order of observations for order
// codes whose results arrive unordered from the Lab. Keys are order codes,
// values are observation names in presentation order. Observations not
// listed keep their received position.
var testResultSequencing = map[string][]string{
	// Heska CBC
	"CBC": {
		"WBC",
		"RBC",
		"Hemoglobin",
		"Hematocrit",
		"MCV",
		"MCH",
		"MCHC",
		"Platelet Count",
		"Neutrophils",
		"Lymphocytes",
		"Monocytes",
		"Eosinophils",
		"Basophils",
		"Absolute Neutrophils",
		"Absolute Lymphocytes",
		"Absolute Monocytes",
		"Absolute Eosinophils",
		"Absolute Basophils",
	},
}
