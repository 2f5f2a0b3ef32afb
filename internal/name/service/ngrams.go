package service

// Common bigrams and trigrams drawn from English and romanized South Asian
// given names and surnames.
var commonBigrams = toSet(
	"an", "ar", "ra", "na", "in", "en", "er", "ha", "ma", "al", "la", "am",
	"sh", "th", "ch", "ri", "ir", "ya", "ni", "ka", "ak", "ta", "at", "it",
	"is", "si", "sa", "as", "ja", "jo", "oh", "hn", "on", "no", "ro", "or",
	"el", "le", "li", "il", "ee", "ne", "de", "ed", "da", "ad", "ll", "nn",
	"mi", "mo", "ke", "ki", "ku", "um", "ul", "ud", "ue", "ie", "ia", "ai",
	"au", "ay", "ey", "ly", "ry", "ny", "bi", "be", "ba", "ab", "pr", "pa",
	"ps", "ve", "va", "vi", "ge", "ga", "go", "ng", "nd", "nt", "st", "rt",
	"rd", "rn", "rm", "rs", "ph", "ti", "te", "es", "et", "re", "ea", "ec",
	"ol", "lo", "wa", "we", "wi", "do", "di", "du", "ru", "gh", "dh", "bh",
	"kh", "ik", "oo", "ou", "us", "ur", "un", "mu", "ms", "so", "ob",
)

var commonTrigrams = toSet(
	"ana", "ani", "ara", "ari", "and", "han", "sha", "ram", "raj", "kum",
	"uma", "mar", "kar", "ash", "esh", "ish", "sin", "ing", "ngh", "pat",
	"ate", "tel", "dev", "evi", "ika", "iya", "nna", "ell",
	"ill", "son", "ton", "man", "ris", "ter", "the", "her", "oha", "moh",
	"ham", "ame", "ima", "ita", "eet", "pre", "ree", "lak", "ksh", "sun",
	"joh", "ohn", "mic", "ich", "cha", "hae", "ael", "rob", "obe",
	"ber", "ert", "per", "ric", "ick", "lee", "ann", "ary", "lin", "ina",
	"ela", "ley", "rya", "eva", "abh", "bhi", "yan", "van", "ven", "ran",
	"das", "dha", "red", "edd", "kri", "shn", "hna", "rin",
)

func toSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// ngramShare is the fraction of a token stream's bigrams and trigrams found
// in the common sets. Tokens shorter than two letters contribute nothing.
func ngramShare(toks []string) float64 {
	total, hits := 0, 0
	for _, tok := range toks {
		r := []rune(tok)
		for i := 0; i+2 <= len(r); i++ {
			total++
			if _, ok := commonBigrams[string(r[i:i+2])]; ok {
				hits++
			}
		}
		for i := 0; i+3 <= len(r); i++ {
			total++
			if _, ok := commonTrigrams[string(r[i:i+3])]; ok {
				hits++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
