package marketplace

// DTOs raw de la API del marketplace. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.
// Prices, payoffs and cash travel as integer subunits.

// marketDTO es una entrada del catálogo de GET /markets.
type marketDTO struct {
	ID            int    `json:"id"`
	Item          string `json:"item"`
	Name          string `json:"name"`
	Description   string `json:"description"` // per-state payoffs, "10,20,30,40"
	MinimumPrice  int64  `json:"minimum_price"`
	MaximumPrice  int64  `json:"maximum_price"`
	PriceTick     int64  `json:"price_tick"`
	MaxOpenOrders int    `json:"max_open_orders"`
}

// sessionDTO es la respuesta de GET /session.
type sessionDTO struct {
	Open    bool        `json:"is_open"`
	Markets []marketDTO `json:"markets,omitempty"`
}

// holdingsDTO es la respuesta de GET /holdings.
type holdingsDTO struct {
	Cash          int64               `json:"cash"`
	CashAvailable int64               `json:"cash_available"`
	Assets        map[string]assetDTO `json:"assets"`
}

type assetDTO struct {
	Units          int `json:"units"`
	UnitsAvailable int `json:"units_available"`
}

// orderDTO es una entrada de GET /orders.
type orderDTO struct {
	ID        string `json:"id"`
	Ref       string `json:"ref"`
	Market    int    `json:"market"`
	Side      string `json:"side"`
	Price     int64  `json:"price"`
	Units     int    `json:"units"`
	Pending   bool   `json:"is_pending"`
	Cancelled bool   `json:"is_cancelled"`
	Traded    bool   `json:"is_traded"`
	Mine      bool   `json:"mine"`
}

// orderRequestDTO es el body de POST /orders.
type orderRequestDTO struct {
	Ref    string `json:"ref"`
	Market int    `json:"market"`
	Side   string `json:"side"`
	Type   string `json:"type"`
	Price  int64  `json:"price"`
	Units  int    `json:"units"`
}

// orderResponseDTO es la respuesta de POST /orders.
type orderResponseDTO struct {
	ID string `json:"id"`
}
