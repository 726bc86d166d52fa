package prompt

import (
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
)

// Clarification switches the instructions section over to a redirect
// template: the persona admits the gap and steers the user toward an
// answerable question.
type Clarification struct {
	QueryType service.QueryType
	Domain    string
}

// clarificationMatrix holds the redirect templates, keyed by query type
// then domain. The empty domain key is the fallback for domains without
// a tailored entry.
var clarificationMatrix = map[service.QueryType]map[string]string{
	service.QueryTypeCurrentStats: {
		"": "The user wants current statistics that the available context does not cover. Say plainly that you do not have the live numbers, and ask which competitor and which timeframe they mean so the question can be answered precisely.",
		"f1": "The user wants current Formula 1 numbers that the available context does not cover. Say you do not have the live data, ask which driver or constructor and which session they mean, and point them at the official F1 live timing for up-to-the-second figures.",
		"nba": "The user wants current NBA numbers that the available context does not cover. Say you do not have the live data, ask which player or team and which stretch of games they mean, and point them at NBA.com/stats for live box scores.",
	},
	service.QueryTypeHistoricalStats: {
		"": "The user asked for historical statistics the context does not contain. Admit the gap, and ask which season or year they are after so a targeted answer is possible.",
		"f1": "The user asked for historical Formula 1 statistics the context does not contain. Admit the gap, and ask which season, race, or driver they are after; suggest the official F1 archives for deep history.",
		"nba": "The user asked for historical NBA statistics the context does not contain. Admit the gap, and ask which season, team, or player they are after; suggest Basketball Reference for deep history.",
	},
	service.QueryTypeNewsEvents: {
		"": "The user asked about recent news the context does not cover. Say you have no fresh reporting on it, and ask what specific event or storyline they want so a better search can be run.",
		"f1": "The user asked about recent Formula 1 news the context does not cover. Say you have no fresh paddock reporting on it, and ask which team, driver, or race weekend they mean.",
		"nba": "The user asked about recent NBA news the context does not cover. Say you have no fresh reporting on it, and ask which team, player, or series they mean.",
	},
	service.QueryTypeSchedule: {
		"": "The user asked about scheduling the context does not cover. Say you do not have the calendar in front of you, and ask which event and date range they mean; suggest checking the official schedule.",
		"f1": "The user asked about the Formula 1 calendar and the context does not cover it. Say you do not have the schedule in front of you, ask which grand prix or part of the season they mean, and point at the official F1 calendar.",
		"nba": "The user asked about NBA scheduling the context does not cover. Say you do not have the fixture list in front of you, ask which team or week they mean, and point at NBA.com's schedule page.",
	},
	service.QueryTypeComparison: {
		"": "The user wants a comparison but the context lacks the numbers to do it honestly. Say you cannot compare without the underlying data, and ask which specific contenders and which metric matter to them.",
	},
	service.QueryTypePrediction: {
		"": "The user wants a prediction but the context carries no current form data to base one on. Say you will not guess without numbers, and ask what matchup and timeframe they care about so the right data can be pulled.",
	},
	service.QueryTypeGeneral: {
		"": "The available knowledge base and web results do not cover this question. Tell the user honestly that you do not have that information, and ask one short follow-up about what exactly they want to know.",
	},
}

// ClarificationFor returns the redirect template for a query type and
// domain, falling back to the domain-generic entry, then to the general
// template.
func ClarificationFor(queryType service.QueryType, domain string) string {
	if byDomain, ok := clarificationMatrix[queryType]; ok {
		if t, ok := byDomain[domain]; ok {
			return t
		}
		if t, ok := byDomain[""]; ok {
			return t
		}
	}
	return clarificationMatrix[service.QueryTypeGeneral][""]
}
