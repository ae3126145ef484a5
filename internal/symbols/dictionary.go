package symbols

import (
	"strings"
	"unicode"
)

// tickers maps uppercase base assets to themselves; aliases maps lowercase
// project names and common shorthands to a base asset. The set is curated, not
// exhaustive: coverage targets the top-cap assets social and news feeds
// actually mention.
var tickers = map[string]struct{}{
	"BTC": {}, "ETH": {}, "BNB": {}, "SOL": {}, "XRP": {}, "ADA": {}, "DOGE": {},
	"AVAX": {}, "DOT": {}, "MATIC": {}, "LINK": {}, "TON": {}, "SHIB": {}, "LTC": {},
	"TRX": {}, "UNI": {}, "ATOM": {}, "XLM": {}, "NEAR": {}, "APT": {}, "ARB": {},
	"OP": {}, "FIL": {}, "ICP": {}, "HBAR": {}, "VET": {}, "INJ": {}, "SUI": {},
	"RNDR": {}, "GRT": {}, "AAVE": {}, "MKR": {}, "ALGO": {}, "QNT": {}, "EGLD": {},
	"FTM": {}, "SAND": {}, "MANA": {}, "AXS": {}, "THETA": {}, "XTZ": {}, "EOS": {},
	"FLOW": {}, "CHZ": {}, "CAKE": {}, "CRV": {}, "LDO": {}, "SNX": {}, "COMP": {},
	"ENJ": {}, "ZEC": {}, "DASH": {}, "NEO": {}, "IOTA": {}, "KSM": {}, "RUNE": {},
	"ZIL": {}, "BAT": {}, "1INCH": {}, "GMT": {}, "APE": {}, "GALA": {}, "IMX": {},
	"DYDX": {}, "ENS": {}, "MASK": {}, "PEPE": {}, "WIF": {}, "BONK": {}, "FLOKI": {},
	"SEI": {}, "TIA": {}, "JUP": {}, "PYTH": {}, "STRK": {}, "JTO": {}, "WLD": {},
	"FET": {}, "AGIX": {}, "OCEAN": {}, "AR": {}, "STX": {}, "ORDI": {}, "KAS": {},
	"MINA": {}, "ROSE": {}, "CELO": {}, "ONE": {}, "HOT": {}, "ANKR": {}, "COTI": {},
	"WAVES": {}, "KAVA": {}, "BAND": {}, "OMG": {}, "YFI": {}, "SUSHI": {}, "BAL": {},
	"UMA": {}, "REN": {}, "LRC": {}, "ZRX": {}, "KNC": {}, "STORJ": {},
}

var aliases = map[string]string{
	"bitcoin":   "BTC",
	"ethereum":  "ETH",
	"ether":     "ETH",
	"binance coin": "BNB",
	"solana":    "SOL",
	"ripple":    "XRP",
	"cardano":   "ADA",
	"dogecoin":  "DOGE",
	"avalanche": "AVAX",
	"polkadot":  "DOT",
	"polygon":   "MATIC",
	"chainlink": "LINK",
	"toncoin":   "TON",
	"shiba inu": "SHIB",
	"shiba":     "SHIB",
	"litecoin":  "LTC",
	"tron":      "TRX",
	"uniswap":   "UNI",
	"cosmos":    "ATOM",
	"stellar":   "XLM",
	"aptos":     "APT",
	"arbitrum":  "ARB",
	"optimism":  "OP",
	"filecoin":  "FIL",
	"hedera":    "HBAR",
	"injective": "INJ",
	"the graph": "GRT",
	"maker":     "MKR",
	"algorand":  "ALGO",
	"fantom":    "FTM",
	"sandbox":   "SAND",
	"decentraland": "MANA",
	"axie":      "AXS",
	"tezos":     "XTZ",
	"pancakeswap": "CAKE",
	"curve":     "CRV",
	"lido":      "LDO",
	"synthetix": "SNX",
	"compound":  "COMP",
	"thorchain": "RUNE",
	"apecoin":   "APE",
	"worldcoin": "WLD",
	"celestia":  "TIA",
	"jupiter":   "JUP",
	"arweave":   "AR",
	"stacks":    "STX",
	"kaspa":     "KAS",
	"sushiswap": "SUSHI",
	"yearn":     "YFI",
}

// Known reports whether base is a dictionary asset.
func Known(base string) bool {
	_, ok := tickers[strings.ToUpper(base)]
	return ok
}

// Extract scans free text and returns the base assets mentioned, in order of
// first appearance, without duplicates. Ticker matches require the token to be
// uppercase in the source text (or prefixed with $) so words like "one" or
// "ape" in prose do not false-positive; alias matches are case-insensitive.
func Extract(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	add := func(base string) {
		if _, dup := seen[base]; dup {
			return
		}
		seen[base] = struct{}{}
		out = append(out, base)
	}

	for _, tok := range tokenize(text) {
		cashtag := strings.HasPrefix(tok, "$")
		t := strings.TrimPrefix(tok, "$")
		if t == "" {
			continue
		}
		upper := strings.ToUpper(t)
		if _, ok := tickers[upper]; ok && (cashtag || t == upper) {
			add(upper)
		}
	}

	lower := strings.ToLower(text)
	for alias, base := range aliases {
		if containsWord(lower, alias) {
			add(base)
		}
	}
	return out
}

// ExtractFirst returns the first unambiguous asset mention, or "".
func ExtractFirst(text string) string {
	hits := Extract(text)
	if len(hits) == 0 {
		return ""
	}
	return hits[0]
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '$'
	})
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		leftOK := start == 0 || !isWordRune(rune(haystack[start-1]))
		rightOK := end == len(haystack) || !isWordRune(rune(haystack[end]))
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
