package knowledge

import "github.com/ncolesummers/weather-insights-agent/pkg/domain"

// seedDocuments is the reference corpus written into an empty collection
var seedDocuments = []domain.KnowledgeDocument{
	{
		Title:    "High Humidity and Thunderstorm Formation",
		Content:  "When humidity levels exceed 80% combined with rising temperatures, the likelihood of thunderstorm formation increases significantly. Farmers should secure outdoor equipment and avoid tall structures. Livestock should be moved to sheltered areas.",
		Category: domain.KnowledgeWeatherAdvisory,
		Tags:     []string{"humidity", "thunderstorms", "farming", "safety"},
	},
	{
		Title:    "Temperature Drop and Frost Protection",
		Content:  "When nighttime temperatures are forecast to drop below 2°C, there is high risk of frost formation. Farmers should cover sensitive crops, drain irrigation systems, and provide additional shelter for livestock. Morning inspections are critical.",
		Category: domain.KnowledgeBestPractice,
		Tags:     []string{"frost", "temperature", "crops", "livestock"},
	},
	{
		Title:    "Wind Speed and Agricultural Activities",
		Content:  "Wind speeds above 15 m/s (54 km/h) make most agricultural activities dangerous. Avoid operating tall equipment, postpone spraying activities, and secure loose materials. Harvest operations should be suspended until winds subside.",
		Category: domain.KnowledgeBestPractice,
		Tags:     []string{"wind", "farming", "safety", "equipment"},
	},
	{
		Title:    "Pressure Drop and Weather System Approach",
		Content:  "A rapid atmospheric pressure drop of more than 3 hPa per hour often indicates an approaching weather system. Communities should prepare for potential severe weather including heavy rain, strong winds, or storms within 12-24 hours.",
		Category: domain.KnowledgeWeatherAdvisory,
		Tags:     []string{"pressure", "storms", "prediction", "preparation"},
	},
	{
		Title:    "Heat Index and Heat Stress Prevention",
		Content:  "When heat index exceeds 32°C (90°F), outdoor workers and livestock face heat stress risk. Schedule heavy work for early morning or evening, ensure adequate water supply, provide shade, and monitor for heat exhaustion symptoms.",
		Category: domain.KnowledgeBestPractice,
		Tags:     []string{"heat", "temperature", "health", "livestock", "safety"},
	},
	{
		Title:    "Rainfall Intensity and Flood Risk",
		Content:  "Rainfall rates exceeding 25mm per hour pose flash flood risks, especially in areas with poor drainage. Communities should clear drainage systems, avoid low-lying areas, and prepare emergency supplies. Agricultural fields may require drainage management.",
		Category: domain.KnowledgeWeatherAdvisory,
		Tags:     []string{"rainfall", "flooding", "drainage", "emergency"},
	},
}
