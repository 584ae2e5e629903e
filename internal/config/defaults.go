package config

// Default keyword phrases. Complaint phrases exclude fault words ("broken",
// "not working") so those reach the technical rule, and exclude urgency words
// so those reach the emergency rule.
var (
	defaultComplaintKeywords = []string{
		"speak to human", "talk to agent", "customer service", "complaint",
		"not satisfied", "wrong information", "confused", "help me",
	}
	defaultFinancialKeywords = []string{
		"negotiate", "discount", "bargain", "lower price", "best price",
		"offer", "deal", "finance", "loan", "emi", "installment",
	}
	defaultCustomKeywords = []string{
		"custom", "modify", "special", "specific", "particular",
		"requirement", "need", "want", "looking for", "prefer",
	}
	defaultTechnicalKeywords = []string{
		"not working", "broken", "error", "problem", "issue",
		"malfunction", "defect", "damage", "repair", "fix",
	}
	defaultEmergencyKeywords = []string{
		"emergency", "urgent", "immediately", "asap", "help",
		"accident", "stuck", "stranded", "danger", "safety",
	}
)

func (k *KeywordsConfig) applyDefaults() {
	if k.Complaint == nil {
		k.Complaint = append([]string(nil), defaultComplaintKeywords...)
	}
	if k.Financial == nil {
		k.Financial = append([]string(nil), defaultFinancialKeywords...)
	}
	if k.Custom == nil {
		k.Custom = append([]string(nil), defaultCustomKeywords...)
	}
	if k.Technical == nil {
		k.Technical = append([]string(nil), defaultTechnicalKeywords...)
	}
	if k.Emergency == nil {
		k.Emergency = append([]string(nil), defaultEmergencyKeywords...)
	}
}

func defaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			ID:        "agent_1",
			Name:      "Rajesh Kumar",
			Email:     "rajesh@everylingua.com",
			Phone:     "+91-9876543211",
			Expertise: []string{"sales", "test_rides", "finance"},
			Languages: []string{"hi", "en", "mr"},
			MaxLoad:   5,
		},
		{
			ID:        "agent_2",
			Name:      "Priya Sharma",
			Email:     "priya@everylingua.com",
			Phone:     "+91-9876543212",
			Expertise: []string{"service", "maintenance", "complaints"},
			Languages: []string{"en", "hi", "ta"},
			MaxLoad:   4,
		},
		{
			ID:        "agent_3",
			Name:      "Amit Patel",
			Email:     "amit@everylingua.com",
			Phone:     "+91-9876543213",
			Expertise: []string{"sales", "custom_requirements", "price_negotiation"},
			Languages: []string{"en", "hi", "gu"},
			MaxLoad:   6,
		},
		{
			ID:        "agent_4",
			Name:      "Sneha Reddy",
			Email:     "sneha@everylingua.com",
			Phone:     "+91-9876543214",
			Expertise: []string{"service", "emergency", "complaints"},
			Languages: []string{"en", "hi", "te", "kn"},
			MaxLoad:   4,
		},
	}
}
