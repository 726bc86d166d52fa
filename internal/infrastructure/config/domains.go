package config

// DefaultDomains is the out-of-the-box domain set. Deployments override
// it wholesale by declaring `domains` in config.yaml; declaration order
// matters because score ties break toward the earlier domain.
func DefaultDomains() []DomainConfig {
	return []DomainConfig{
		{
			Name: "f1",
			Keywords: []string{
				"f1", "formula 1", "formula one", "grand prix", "qualifying",
				"pit stop", "podium", "pole position", "paddock", "constructor",
				"circuit", "lap time", "drs", "fastest lap",
			},
			SourceTypeTags:   []string{"f1_data", "f1_stats", "racing"},
			OverridePrefixes: []string{"F1:", "RACING:"},
			PriorityBoost:    1.0,
			Emoji:            "🏎️",
		},
		{
			Name: "nba",
			Keywords: []string{
				"nba", "basketball", "playoffs", "dunk", "rebounds", "assists",
				"three-pointer", "free throw", "roster", "franchise", "draft pick",
				"triple-double",
			},
			SourceTypeTags:   []string{"nba_data", "nba_stats", "basketball"},
			OverridePrefixes: []string{"NBA:", "BASKETBALL:"},
			PriorityBoost:    1.0,
			Emoji:            "🏀",
		},
		{
			Name: "crypto",
			Keywords: []string{
				"crypto", "blockchain", "token", "wallet", "defi", "mining",
				"altcoin", "staking", "hashrate", "halving", "gas fee",
			},
			SourceTypeTags:   []string{"crypto_data", "crypto_news"},
			OverridePrefixes: []string{"CRYPTO:"},
			PriorityBoost:    1.0,
			Emoji:            "🪙",
		},
	}
}

// DefaultIndicators maps proper nouns that live in exactly one domain.
// A hit short-circuits classification at high confidence.
func DefaultIndicators() []IndicatorConfig {
	return []IndicatorConfig{
		{Token: "verstappen", Domain: "f1"},
		{Token: "hamilton", Domain: "f1"},
		{Token: "leclerc", Domain: "f1"},
		{Token: "norris", Domain: "f1"},
		{Token: "red bull racing", Domain: "f1"},
		{Token: "lebron", Domain: "nba"},
		{Token: "curry", Domain: "nba"},
		{Token: "giannis", Domain: "nba"},
		{Token: "jokic", Domain: "nba"},
		{Token: "lakers", Domain: "nba"},
		{Token: "bitcoin", Domain: "crypto"},
		{Token: "ethereum", Domain: "crypto"},
		{Token: "solana", Domain: "crypto"},
	}
}

// DefaultAmbiguousTerms are words that carry no domain signal on their
// own; a query made of them leans on the session's current domain.
func DefaultAmbiguousTerms() []string {
	return []string{
		"stats", "updates", "latest", "news", "scores", "results",
		"standings", "schedule", "performance", "data", "info", "numbers",
	}
}
