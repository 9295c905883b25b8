package classify

import "testing"

func TestKeywordClassify(t *testing.T) {
	c := NewDefault()

	tests := []struct {
		name   string
		ticker string
		title  string
		want   Category
	}{
		{"general", "KXFEDDECISION-26MAR-H0", "Fed holds rates?", General},
		{"sports prefix", "KXNFLGAME-26JAN05-KC", "Chiefs win?", Sports},
		{"crypto prefix", "KXBTCD-26MAR0117-T90000", "Bitcoin above 90k?", Crypto},
		{"financials prefix", "kxinxu-26mar01-b5000", "", Financials},
		{"combo beats sports", "KXMVESPORTSMULTIGAME-X", "", Combo},
		{"independent by title", "KXOSCARS-26-HOST", "What will the host say during the ceremony?", Independent},
		{"prop by title", "KXCBBGAME-26MAR01-KU", "Kansas wins by over 3.5 points?", Prop},
		{"mention default", "KXSNLMENTION-26MAR01-TAYLOR", "", Mention},
		{"mention live", "KXNCAAMENTION-26MAR01-BUZZER", "", MentionLive},
		{"mention extended", "KXTRUMPMENTION-26MAR01-TARIFF", "", MentionExtended},
		{"mention excluded", "KXNBAMENTION-26MAR01-DUNK", "", MentionExcluded},
		{"mention excluded earnings", "KXEARNINGSMENTIONAAPL-26", "", MentionExcluded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.ticker, tt.title); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.ticker, got, tt.want)
			}
		})
	}
}

func TestFromExchange(t *testing.T) {
	if FromExchange("Sports") != Sports {
		t.Error("Sports")
	}
	if FromExchange("Politics") != General {
		t.Error("Politics should be general")
	}
}
