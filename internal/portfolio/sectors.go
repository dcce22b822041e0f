package portfolio

// etfExclusions lists index and sector ETFs that must never receive stock
// signals. They track baskets, so every strategy filter misreads them.
var etfExclusions = map[string]bool{
	"SPY": true, "QQQ": true, "IWM": true, "DIA": true, "VTI": true,
	"VOO": true, "IVV": true, "VEA": true, "VWO": true, "EFA": true,
	"XLK": true, "XLF": true, "XLE": true, "XLV": true, "XLI": true,
	"XLP": true, "XLY": true, "XLU": true, "XLB": true, "XLRE": true, "XLC": true,
	"GLD": true, "SLV": true, "USO": true, "TLT": true, "IEF": true,
	"HYG": true, "LQD": true, "AGG": true, "BND": true,
	"ARKK": true, "ARKG": true, "ARKW": true,
	"SMH": true, "SOXX": true, "IBB": true, "XBI": true, "KRE": true,
	"JETS": true, "TAN": true, "ICLN": true,
}

// sectorMap assigns watchlist symbols to sectors. Sub-sectors such as
// Semiconductors or Airlines are tracked separately from their parent so
// concentrated thematic bets hit the cap sooner.
var sectorMap = map[string]string{
	// Technology
	"AAPL": "Technology", "MSFT": "Technology", "GOOGL": "Technology",
	"GOOG": "Technology", "META": "Technology", "ORCL": "Technology",
	"CRM": "Technology", "ADBE": "Technology", "NOW": "Technology",
	"IBM": "Technology", "ACN": "Technology", "CSCO": "Technology",
	"SNOW": "Technology", "PLTR": "Technology", "DDOG": "Technology",
	"NET": "Technology", "ZS": "Technology", "CRWD": "Technology",
	"PANW": "Technology", "FTNT": "Technology", "TEAM": "Technology",
	"WDAY": "Technology", "HUBS": "Technology", "MDB": "Technology",

	// Semiconductors
	"NVDA": "Semiconductors", "AMD": "Semiconductors", "INTC": "Semiconductors",
	"TSM": "Semiconductors", "AVGO": "Semiconductors", "QCOM": "Semiconductors",
	"TXN": "Semiconductors", "MU": "Semiconductors", "AMAT": "Semiconductors",
	"LRCX": "Semiconductors", "KLAC": "Semiconductors", "ASML": "Semiconductors",
	"ADI": "Semiconductors", "MRVL": "Semiconductors", "ON": "Semiconductors",
	"ARM": "Semiconductors", "SMCI": "Semiconductors",

	// Financials
	"JPM": "Financials", "BAC": "Financials", "WFC": "Financials",
	"GS": "Financials", "MS": "Financials", "C": "Financials",
	"BLK": "Financials", "SCHW": "Financials", "AXP": "Financials",
	"V": "Financials", "MA": "Financials", "PYPL": "Financials",
	"SQ": "Financials", "COIN": "Financials", "SOFI": "Financials",

	// Healthcare
	"JNJ": "Healthcare", "UNH": "Healthcare", "PFE": "Healthcare",
	"ABBV": "Healthcare", "MRK": "Healthcare", "LLY": "Healthcare",
	"TMO": "Healthcare", "ABT": "Healthcare", "DHR": "Healthcare",
	"BMY": "Healthcare", "AMGN": "Healthcare", "GILD": "Healthcare",
	"ISRG": "Healthcare", "VRTX": "Healthcare", "REGN": "Healthcare",
	"MRNA": "Healthcare", "BNTX": "Healthcare",

	// Consumer
	"AMZN": "Consumer", "WMT": "Consumer", "COST": "Consumer",
	"HD": "Consumer", "LOW": "Consumer", "TGT": "Consumer",
	"NKE": "Consumer", "SBUX": "Consumer", "MCD": "Consumer",
	"PG": "Consumer", "KO": "Consumer", "PEP": "Consumer",
	"DIS": "Consumer", "NFLX": "Consumer", "CMG": "Consumer",
	"LULU": "Consumer",

	// E-Commerce
	"SHOP": "E-Commerce", "MELI": "E-Commerce", "ETSY": "E-Commerce",
	"EBAY": "E-Commerce", "SE": "E-Commerce", "CPNG": "E-Commerce",
	"BABA": "E-Commerce", "JD": "E-Commerce", "PDD": "E-Commerce",

	// Energy
	"XOM": "Energy", "CVX": "Energy", "COP": "Energy",
	"SLB": "Energy", "EOG": "Energy", "OXY": "Energy",
	"PSX": "Energy", "VLO": "Energy", "MPC": "Energy",

	// Clean Energy
	"ENPH": "Clean Energy", "SEDG": "Clean Energy", "FSLR": "Clean Energy",
	"RUN": "Clean Energy", "PLUG": "Clean Energy", "NEE": "Clean Energy",

	// EV-Auto
	"TSLA": "EV-Auto", "RIVN": "EV-Auto", "LCID": "EV-Auto",
	"NIO": "EV-Auto", "XPEV": "EV-Auto", "LI": "EV-Auto",
	"F": "EV-Auto", "GM": "EV-Auto",

	// Industrials
	"BA": "Industrials", "CAT": "Industrials", "DE": "Industrials",
	"HON": "Industrials", "UPS": "Industrials", "FDX": "Industrials",
	"LMT": "Industrials", "RTX": "Industrials", "GE": "Industrials",
	"MMM": "Industrials", "UNP": "Industrials", "CSX": "Industrials",

	// Airlines
	"DAL": "Airlines", "UAL": "Airlines", "AAL": "Airlines",
	"LUV": "Airlines", "ALK": "Airlines",

	// Communications
	"T": "Communications", "VZ": "Communications", "TMUS": "Communications",
	"CMCSA": "Communications", "CHTR": "Communications",

	// Materials
	"LIN": "Materials", "APD": "Materials", "FCX": "Materials",
	"NEM": "Materials", "NUE": "Materials", "DOW": "Materials",

	// Real Estate
	"AMT": "Real Estate", "PLD": "Real Estate", "CCI": "Real Estate",
	"EQIX": "Real Estate", "O": "Real Estate", "SPG": "Real Estate",

	// Utilities
	"DUK": "Utilities", "SO": "Utilities", "D": "Utilities",
	"AEP": "Utilities", "EXC": "Utilities",
}

// IsExcludedETF reports whether a symbol is on the ETF exclusion list.
func IsExcludedETF(symbol string) bool {
	return etfExclusions[symbol]
}

// SectorFor returns the sector for a symbol, "Unknown" when unmapped.
func SectorFor(symbol string) string {
	if sector, ok := sectorMap[symbol]; ok {
		return sector
	}
	return "Unknown"
}
