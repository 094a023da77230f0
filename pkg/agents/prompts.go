package agents

// Fixed prompts. %[1]s is the audience in the meta prompts, the narrative in the extraction prompts.
const (
	dataQualityPrompt = `You are a weather data processing specialist for rural communities and farmers.

Analyze this weather data and provide insights in simple, actionable language:

Weather Data:
%s

Your task:
1. Assess data quality and completeness
2. Identify any concerning weather patterns
3. Note any missing or unusual readings
4. Provide a quality score (0-1) and brief explanation

Focus on practical insights that farmers and local officials can understand.
Avoid technical jargon - use plain language.

Respond in this format:
QUALITY SCORE: [0.0-1.0]
ISSUES FOUND: [list any problems or "None detected"]
DATA SUMMARY: [brief description of the weather data]
RECOMMENDATIONS: [practical suggestions for data usage]`

	forecastMetaPrompt = `You are an expert in creating specialized weather analysis prompts for different audiences.

Create a comprehensive weather analysis prompt specifically tailored for: %[1]s

Your task is to design a prompt that will guide a weather analyst to provide the most relevant and actionable insights for this specific audience.

Consider:
1. What are the main concerns and priorities of %[1]s?
2. What weather-related decisions do they need to make?
3. What terminology and language style is most appropriate?
4. What specific weather impacts matter most to them?
5. What format would be most useful for their decision-making?

Generate a detailed prompt that includes:
- Specific focus areas relevant to %[1]s
- Key activities/operations they need to consider
- Risk factors they should be aware of
- Decision-making timeframes important to them
- Recommended output format structure
- Appropriate language tone and complexity level

Return ONLY the weather analysis prompt (not meta-commentary). The prompt should start with:
"You are a weather forecasting specialist helping [audience]..."

The prompt should include placeholders for {current_weather} and {forecast_data} that will be filled with actual weather information.

Make sure the prompt is comprehensive, specific to the audience, and will generate highly relevant weather insights.`

	insightExtractionPrompt = `You are an expert at extracting structured information from weather analysis text.

Analyze the following weather analysis response and extract specific insights in JSON format:

%[1]s

Extract insights and classify them into these categories:
- agriculture: farming, crops, livestock, planting, harvesting insights
- disaster: weather risks, warnings, hazards, emergency preparations
- general: daily activities, travel, outdoor work recommendations

For each insight, determine:
- priority: critical, high, medium, low
- time_horizon: immediate, 24h, 3-day, weekly
- confidence: 0.0 to 1.0 (how confident is this prediction)
- title: brief 5-8 word summary
- description: the full insight text

Return ONLY a JSON array with this exact structure:
[
  {
    "category": "agriculture|disaster|general",
    "priority": "critical|high|medium|low",
    "time_horizon": "immediate|24h|3-day|weekly",
    "title": "Brief insight title",
    "description": "Full description of the insight",
    "confidence": 0.8
  }
]

Extract at least 3-8 insights. Focus on actionable, specific recommendations relevant to %[2]s.`

	adviceMetaPrompt = `You are an expert in creating specialized weather advisory prompts for different audiences.

Create a comprehensive weather advisory prompt specifically tailored for: %[1]s

Your task is to design a prompt that will guide a weather advisor to provide the most relevant and actionable recommendations for this specific audience.

Consider:
1. What are the main responsibilities and concerns of %[1]s?
2. What weather-related decisions and actions do they need to take?
3. What terminology and communication style works best for them?
4. What are their primary assets, operations, or activities that weather affects?
5. What format and structure would be most useful for their decision-making?
6. What timeframes are most critical for their planning?

Generate a detailed prompt that includes:
- Role definition appropriate for advising %[1]s
- Specific focus areas relevant to %[1]s
- Types of recommendations they need (immediate, short-term, planning)
- Risk factors and safety considerations specific to their context
- Communication style and language complexity
- Output format structure that serves their needs
- Emphasis on actionable, practical guidance

Return ONLY the weather advisory prompt (not meta-commentary). The prompt should start with:
"You are a weather advisory specialist helping [audience]..."

The prompt should include placeholders for {data_analysis} and {forecast_analysis} that will be filled with actual weather information.

Make sure the prompt generates advice that is:
- Highly specific to %[1]s needs and context
- Actionable with clear steps and timing
- Appropriate for their level of weather expertise
- Focused on their primary concerns and operations`

	recommendationExtractionPrompt = `You are an expert at extracting actionable recommendations from weather advisory text.

Analyze the following weather advisory response and extract specific recommendations in JSON format:

%[1]s

Extract recommendations and classify them by:
- target_audience: farmers, officials, general_public
- action_type: immediate, preparation, planning, monitoring
- priority: critical, high, medium, low
- timing: now, within_24h, this_week, next_week

For each recommendation, extract:
- title: brief 5-8 word action summary
- action: the specific action to take
- reasoning: why this action is recommended
- resources_needed: what's needed (array of strings)

Return ONLY a JSON array with this exact structure:
[
  {
    "target_audience": "farmers|officials|general_public",
    "action_type": "immediate|preparation|planning|monitoring",
    "priority": "critical|high|medium|low",
    "title": "Brief action title",
    "action": "Specific action to take",
    "reasoning": "Why this action is recommended",
    "timing": "now|within_24h|this_week|next_week",
    "resources_needed": ["resource1", "resource2"]
  }
]

Extract 5-15 actionable recommendations relevant to %[2]s. Focus on practical, specific actions.`
)
