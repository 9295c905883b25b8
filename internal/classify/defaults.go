package classify

// DefaultRules returns the prefix and keyword tables used in production.
func DefaultRules() Rules {
	return Rules{
		MentionMarkers:  []string{"MENTION"},
		MentionLive:     []string{"NCAAMENTION", "NCAABMENTION"},
		MentionExtended: []string{"TRUMPMENTION"},
		MentionExcluded: []string{
			"EARNINGS", "FIGHTMENTION", "SECPRESS", "LEAVITT", "NBAMENTION", "NBAFINALS",
		},
		ComboPrefixes: []string{
			"KXMVESPORTS", "KXMULTIGAME", "KXPARLAY", "KXCOMBO", "KXMVESPORTSMULTIGAME",
		},
		CryptoPrefixes:     []string{"KXBTC", "KXETH", "KXSOL", "KXCRYPTO", "KXDOGE", "KXXRP"},
		FinancialsPrefixes: []string{"KXINX", "KXNASDAQ", "KXSP5", "KXWTI", "KXINXU"},
		SportsPrefixes: []string{
			"KXNCAAMB", "KXNCAAFB", "KXNCAAWB", "KXNCAAB",
			"KXNFL", "KXNBA", "KXNHL", "KXMLB",
			"KXSOCCER", "KXUFC", "KXTENNIS", "KXCRICKET", "KXHIGHLAX",
			"KXVALORANT", "KXCS2",
			"KXATPMATCH", "KXWTAMATCH", "KXDPWORLDTOUR", "KXPGA",
			"KXLALIGA", "KXUCL", "KXARGLNB", "KXSB",
			"KXNEXTTEAMNFL",
			"KXATPCHALLENGER", "KXDOTA2", "KXLOLMAP", "KXLOLGAME",
			"KXSERIEASPREAD", "KXSERIEATOTAL", "KXR6GAME",
			"KXSCOTTISHPREM", "KXAHLGAME", "KXKHLGAME",
			"KXWOCURL", "KXEFLCHAMPIONSHIP", "KXLIGUE1",
			"KXSWISSLEAGUE", "KXWOFREESKI", "KXWOSBOARD",
			"KXEPLBTTS", "KXNASCAR", "KXAAAGASW",
			"KXNEXTTEAMNBA", "KXLPGA", "KXWNBA", "KXMLS",
			"KXAFCCL",
			"KXWTACHALLENGER", "KXWOMHOCKEY", "KXALEAGUE",
			"KXWOSSKATE", "KXWOSHORT", "KXWOSPEED",
			"KXWOFSKATE", "KXWOBIATHLON", "KXWOBOB", "KXWOLUGE",
			"KXWOXC", "KXWOCOMBI", "KXWOJUMP", "KXWOALPINE",
		},
		PropKeywords: []string{
			"over ", "under ", "by over", "by under", "spread",
			"total", "points", "1h ", "1st half", "2nd half",
			"first half", "second half", "quarter", "inning",
			"half time", "halftime",
		},
		IndependentKeywords: []string{
			"what will", "say during", "say at", "say in", "say on",
			"mention", "announce", "announcer", "commentator",
			"play by play", "color commentary", "broadcast",
			"press conference", "speech", "address", "interview",
			"debate", "ceremony", "halftime show", "opening remarks",
			"state of the", "remarks at", "remarks during",
		},
	}
}

// MentionSeriesKeywords are series title keywords that mark mention series
// during discovery.
var MentionSeriesKeywords = []string{
	"what will", "say during", "say at", "say on", "say in",
	"announcer", "commentator", "broadcast mention",
}

// FallbackMentionSeries is scanned when series discovery fails.
var FallbackMentionSeries = []string{
	"KXNFLMENTION", "KXNCAAMENTION", "KXNCAABMENTION",
	"KXSNFMENTION", "KXTNFMENTION", "KXCFBMENTION", "KXMLBMENTION",
	"KXFIGHTMENTION", "KXSBMENTION",
	"KXTRUMPMENTION", "KXTRUMPMENTIONB",
	"KXMAMDANIMENTION", "KXHOCHULMENTION",
	"KXSECPRESSMENTION", "KXLEAVITTMENTION",
	"KXGOVERNORMENTION",
	"KXMADDOWMENTION",
	"KXSNLMENTION", "KXROGANMENTION", "KXCOOPERMENTION",
	"KXCOLBERTMENTION", "KXKIMMELMENTION",
	"KXVANCEMENTION",
}
