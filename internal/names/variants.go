package names

import (
	"sort"
	"strings"
)

// nicknameGroups lists given-name forms that refer to the same baptismal
// name. The first entry of each group is the canonical form.
var nicknameGroups = [][]string{
	{"william", "bill", "billy", "will", "willie", "wm", "liam"},
	{"robert", "bob", "bobby", "rob", "robbie", "bert"},
	{"richard", "dick", "rick", "ricky", "rich", "richd"},
	{"john", "jack", "johnny", "jno", "jon"},
	{"james", "jim", "jimmy", "jas", "jamie"},
	{"thomas", "tom", "tommy", "thos"},
	{"charles", "charlie", "chas", "chuck"},
	{"edward", "ed", "eddie", "ted", "ned", "edw"},
	{"henry", "harry", "hal", "hy", "hen"},
	{"joseph", "joe", "jos", "joey"},
	{"george", "geo", "georgie"},
	{"frederick", "fred", "freddie", "fredk"},
	{"samuel", "sam", "saml", "sammy"},
	{"benjamin", "ben", "benj", "benny"},
	{"alexander", "alex", "alec", "sandy", "alexr"},
	{"albert", "bert", "albie", "al"},
	{"arthur", "art", "artie"},
	{"francis", "frank", "fras"},
	{"daniel", "dan", "danny"},
	{"david", "dave", "davy"},
	{"michael", "mike", "mick", "micky"},
	{"peter", "pete"},
	{"walter", "walt", "wally"},
	{"lawrence", "laurence", "larry", "laurie"},
	{"margaret", "peggy", "maggie", "meg", "madge", "marge", "margt", "daisy"},
	{"elizabeth", "eliza", "beth", "betty", "bess", "bessie", "betsy", "liz", "lizzie", "elspeth", "lisa", "eliz"},
	{"mary", "polly", "molly", "mae", "mamie", "maria"},
	{"sarah", "sally", "sadie", "sara"},
	{"catherine", "katherine", "kathleen", "kate", "kitty", "kath", "cathy", "kit", "cath"},
	{"ann", "anne", "anna", "annie", "nancy", "nan", "hannah"},
	{"ellen", "helen", "nell", "nellie", "ella", "eleanor", "elinor"},
	{"jane", "jenny", "jennie", "janet", "jean"},
	{"susan", "susanna", "susannah", "sue", "susie", "suky"},
	{"frances", "fanny", "fran"},
	{"dorothy", "dolly", "dot", "dottie", "dora"},
	{"martha", "patty", "mattie"},
	{"florence", "flo", "florrie", "floss"},
	{"louisa", "louise", "lou", "lulu"},
	{"harriet", "hattie", "hetty"},
	{"isabella", "isabel", "bella", "belle", "ishbel"},
	{"agnes", "aggie", "nessie"},
	{"christopher", "chris", "kit", "xtopher"},
	{"nicholas", "nick", "nicky"},
	{"matthew", "matt", "mat"},
	{"stephen", "steven", "steve"},
	{"andrew", "andy", "drew"},
	{"patrick", "pat", "paddy"},
	{"edith", "edie"},
	{"emily", "emmie", "em"},
	{"alice", "alys", "allie"},
}

var nicknameIndex = buildNicknameIndex()

func buildNicknameIndex() map[string][]string {
	idx := make(map[string][]string)
	for _, group := range nicknameGroups {
		canon := group[0]
		for _, n := range group {
			idx[n] = appendUnique(idx[n], canon)
		}
	}
	return idx
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

// Canonical returns the canonical forms a given name may stand for. Names
// outside the nickname table canonicalize to themselves.
func Canonical(given string) []string {
	given = Normalize(given)
	if c, ok := nicknameIndex[given]; ok {
		return c
	}
	return []string{given}
}

// Nicknames returns every known variant of a given name, excluding itself,
// in deterministic order.
func Nicknames(given string) []string {
	given = Normalize(given)
	seen := map[string]bool{given: true}
	var out []string
	for _, canon := range Canonical(given) {
		for _, group := range nicknameGroups {
			if group[0] != canon {
				continue
			}
			for _, n := range group {
				if !seen[n] {
					seen[n] = true
					out = append(out, n)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// GivenMatch classifies how two given-name tokens relate.
type GivenMatch int

const (
	GivenNone GivenMatch = iota
	GivenInitial
	GivenNickname
	GivenExact
)

// CompareGiven compares two normalized given-name tokens.
func CompareGiven(a, b string) GivenMatch {
	if a == "" || b == "" {
		return GivenNone
	}
	if a == b {
		return GivenExact
	}
	if IsInitial(a) || IsInitial(b) {
		if a[0] == b[0] {
			return GivenInitial
		}
		return GivenNone
	}
	for _, ca := range Canonical(a) {
		for _, cb := range Canonical(b) {
			if ca == cb {
				return GivenNickname
			}
		}
	}
	return GivenNone
}

// surnameGroups lists spelling variants commonly confused in transcriptions.
var surnameGroups = [][]string{
	{"smith", "smyth", "smythe", "smithe"},
	{"thompson", "thomson", "tomson", "tompson"},
	{"clark", "clarke", "clerk", "clerke"},
	{"brown", "browne", "broun"},
	{"green", "greene"},
	{"reid", "reed", "read", "reade"},
	{"phillips", "philips", "phillipps"},
	{"johnson", "johnston", "johnstone", "jonson"},
	{"stevens", "stephens", "stevenson", "stephenson"},
	{"davies", "davis", "davys"},
	{"macdonald", "mcdonald", "macdonnell", "mcdonnell"},
	{"mackenzie", "mckenzie", "mckensie"},
	{"anderson", "andersen", "andreson"},
	{"white", "whyte"},
	{"gray", "grey"},
	{"shaw", "shore"},
	{"hughes", "hewes", "hews"},
	{"rogers", "rodgers"},
	{"mathews", "matthews", "mathewes"},
	{"wright", "right", "wrighte"},
	{"cooke", "cook"},
	{"moore", "more", "moor", "muir"},
	{"allen", "allan", "alleyn"},
	{"turner", "tourner"},
	{"baker", "bakere"},
	{"walker", "walkar"},
	{"wilkinson", "wilkenson", "wilkison"},
	{"harris", "harries", "herries"},
	{"jones", "johns"},
	{"evans", "evens", "evance"},
}

var surnameIndex = buildSurnameIndex()

func buildSurnameIndex() map[string]int {
	idx := make(map[string]int)
	for i, group := range surnameGroups {
		for _, s := range group {
			idx[s] = i
		}
	}
	return idx
}

// SurnameVariants returns known and rule-derived spelling variants of a
// surname, excluding the surname itself.
func SurnameVariants(surname string) []string {
	s := Normalize(surname)
	if s == "" {
		return nil
	}
	seen := map[string]bool{s: true}
	var out []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	if i, ok := surnameIndex[s]; ok {
		for _, v := range surnameGroups[i] {
			add(v)
		}
	}

	switch {
	case strings.HasPrefix(s, "mac"):
		add("mc" + s[3:])
	case strings.HasPrefix(s, "mc"):
		add("mac" + s[2:])
	}
	if strings.HasSuffix(s, "e") {
		add(strings.TrimSuffix(s, "e"))
	} else {
		add(s + "e")
	}
	if strings.Contains(s, "y") {
		add(strings.ReplaceAll(s, "y", "i"))
	}
	sort.Strings(out)
	return out
}

// SurnameMatch classifies how two surnames relate.
type SurnameMatch int

const (
	SurnameNone SurnameMatch = iota
	SurnameSoundex
	SurnameVariant
	SurnameExact
)

// CompareSurname compares two surnames after normalization.
func CompareSurname(a, b string) SurnameMatch {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return SurnameNone
	}
	if a == b {
		return SurnameExact
	}
	ia, oka := surnameIndex[a]
	ib, okb := surnameIndex[b]
	if oka && okb && ia == ib {
		return SurnameVariant
	}
	for _, v := range SurnameVariants(a) {
		if v == b {
			return SurnameVariant
		}
	}
	if Soundex(a) == Soundex(b) {
		return SurnameSoundex
	}
	return SurnameNone
}

// Soundex returns the American Soundex code of a name (e.g. "Robert" → "R163").
func Soundex(s string) string {
	s = strings.ToUpper(Normalize(strings.ReplaceAll(s, " ", "")))
	var letters []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			letters = append(letters, s[i])
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := func(c byte) byte {
		switch c {
		case 'B', 'F', 'P', 'V':
			return '1'
		case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
			return '2'
		case 'D', 'T':
			return '3'
		case 'L':
			return '4'
		case 'M', 'N':
			return '5'
		case 'R':
			return '6'
		case 'H', 'W':
			return 'h'
		default:
			return '0'
		}
	}

	out := []byte{letters[0]}
	last := code(letters[0])
	for _, c := range letters[1:] {
		d := code(c)
		if d == 'h' {
			continue
		}
		if d != '0' && d != last {
			out = append(out, d)
			if len(out) == 4 {
				break
			}
		}
		last = d
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}
