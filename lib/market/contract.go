package market

// SecurityType identifies the kind of instrument a Contract describes
type SecurityType string

const (
	SecTypeStock  SecurityType = "STK"
	SecTypeOption SecurityType = "OPT"
	SecTypeFuture SecurityType = "FUT"
	SecTypeIndex  SecurityType = "IND"
	SecTypeForex  SecurityType = "FOREX"
	SecTypeCash   SecurityType = "CASH"
	SecTypeCFD    SecurityType = "CFD"
	SecTypeBag    SecurityType = "BAG"
)

// OptionRight is the right of an option contract. The zero value means "not an option".
type OptionRight string

const (
	RightNone OptionRight = ""
	RightCall OptionRight = "C"
	RightPut  OptionRight = "P"
)

// Contract uniquely identifies a tradeable instrument
type Contract struct {
	ConID           int32        // gateway contract id, 0 if unspecified
	Symbol          string       // ticker symbol
	SecType         SecurityType // security type
	LastTradeDate   string       // expiration for derivatives (YYYYMMDD or YYYYMM)
	Strike          float64      // strike price, 0 if not an option
	Right           OptionRight  // call/put
	Multiplier      string       // contract multiplier for derivatives
	Exchange        string       // e.g. SMART, NYSE
	PrimaryExchange string       // primary exchange for SMART routing
	Currency        string       // e.g. USD
	LocalSymbol     string       // local exchange symbol
	TradingClass    string       // trading class
	IncludeExpired  bool         // include expired contracts
}

// Stock creates a stock contract
func Stock(symbol, exchange, currency string) Contract {
	return Contract{
		Symbol:   symbol,
		SecType:  SecTypeStock,
		Exchange: exchange,
		Currency: currency,
	}
}

// Forex creates a forex contract routed to IDEALPRO, e.g. Forex("EUR.USD")
func Forex(pair string) Contract {
	return Contract{
		Symbol:   pair,
		SecType:  SecTypeCash,
		Exchange: "IDEALPRO",
		Currency: "USD",
	}
}
