package mention

// denyList rejects bare-word matches that look like ticker symbols but are
// common ASCII acronyms unrelated to coins.
var denyList = map[string]struct{}{
	"USD": {}, "NFT": {}, "CEO": {}, "ROI": {}, "ATH": {},
	"CTO": {}, "DYOR": {}, "FOMO": {}, "FUD": {}, "ATL": {},
	"API": {}, "URL": {}, "DEX": {}, "CEX": {}, "KYC": {},
	"AML": {}, "IMO": {}, "IMHO": {}, "LOL": {}, "GM": {},
	"GN": {}, "WAGMI": {}, "NGMI": {}, "DCA": {}, "TVL": {},
}

func isDenied(symbol string) bool {
	_, ok := denyList[symbol]
	return ok
}
