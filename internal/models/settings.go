package models

// Settings is the single persisted settings record. Display-only fields
// (NumberFormat, Timezone) are opaque passthroughs the core never
// interprets.
type Settings struct {
	ID                       int     `json:"id" db:"id"`
	TakerFee                 float64 `json:"takerFee" db:"taker_fee"`
	MakerFee                 float64 `json:"makerFee" db:"maker_fee"`
	EnableFunding            bool    `json:"enableFunding" db:"enable_funding"`
	BaseBalance              float64 `json:"baseBalance" db:"base_balance"`
	DefaultStopLossPercent   float64 `json:"defaultStopLossPercent" db:"default_stop_loss_percent"`
	DefaultTakeProfitPercent float64 `json:"defaultTakeProfitPercent" db:"default_take_profit_percent"`
	NumberFormat             string  `json:"numberFormat" db:"number_format"`
	Timezone                 string  `json:"timezone" db:"timezone"`
}

// DefaultSettings returns the seed row the Supervisor writes on first boot.
func DefaultSettings() Settings {
	return Settings{
		ID:                       1,
		TakerFee:                 0.0004,
		MakerFee:                 0.0002,
		EnableFunding:            false,
		BaseBalance:              10000,
		DefaultStopLossPercent:   5,
		DefaultTakeProfitPercent: 10,
		NumberFormat:             "en-US",
		Timezone:                 "UTC",
	}
}

// UpdateSettingsRequest carries a partial update; nil fields are left
// untouched, mirroring the pointer-optional pattern used across the Broker.
type UpdateSettingsRequest struct {
	TakerFee                 *float64 `json:"takerFee,omitempty"`
	MakerFee                 *float64 `json:"makerFee,omitempty"`
	EnableFunding            *bool    `json:"enableFunding,omitempty"`
	BaseBalance              *float64 `json:"baseBalance,omitempty"`
	DefaultStopLossPercent   *float64 `json:"defaultStopLossPercent,omitempty"`
	DefaultTakeProfitPercent *float64 `json:"defaultTakeProfitPercent,omitempty"`
	NumberFormat             *string  `json:"numberFormat,omitempty"`
	Timezone                 *string  `json:"timezone,omitempty"`
}

// Apply merges non-nil fields of req onto s.
func (req UpdateSettingsRequest) Apply(s *Settings) {
	if req.TakerFee != nil {
		s.TakerFee = *req.TakerFee
	}
	if req.MakerFee != nil {
		s.MakerFee = *req.MakerFee
	}
	if req.EnableFunding != nil {
		s.EnableFunding = *req.EnableFunding
	}
	if req.BaseBalance != nil {
		s.BaseBalance = *req.BaseBalance
	}
	if req.DefaultStopLossPercent != nil {
		s.DefaultStopLossPercent = *req.DefaultStopLossPercent
	}
	if req.DefaultTakeProfitPercent != nil {
		s.DefaultTakeProfitPercent = *req.DefaultTakeProfitPercent
	}
	if req.NumberFormat != nil {
		s.NumberFormat = *req.NumberFormat
	}
	if req.Timezone != nil {
		s.Timezone = *req.Timezone
	}
}

// Stats is the aggregate view computed by Broker.GetStats.
type Stats struct {
	TotalPositions   int     `json:"totalPositions"`
	OpenPositions    int     `json:"openPositions"`
	ClosedPositions  int     `json:"closedPositions"`
	TotalRealizedPnl float64 `json:"totalRealizedPnl"`
	WinRate          float64 `json:"winRate"` // percentage
	AvgRMultiple     float64 `json:"avgRMultiple"`
	BestSymbol       string  `json:"bestSymbol,omitempty"`
	BestSymbolPnl    float64 `json:"bestSymbolPnl,omitempty"`
	WorstSymbol      string  `json:"worstSymbol,omitempty"`
	WorstSymbolPnl   float64 `json:"worstSymbolPnl,omitempty"`
	CurrentBalance   float64 `json:"currentBalance"`
}
