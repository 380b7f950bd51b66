package estate

import "time"

// PropertyTypes are the listing categories offered as search filters.
// "All" disables type filtering.
var PropertyTypes = []string{
	"All",
	"House",
	"Townhouse",
	"Condo",
	"Duplex",
	"Studio",
	"Villa",
	"Apartment",
	"Other",
}

// Property is one listing.
type Property struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Address     string    `json:"address"`
	Geolocation string    `json:"geolocation"`
	Price       float64   `json:"price"`
	Area        float64   `json:"area"`
	Bedrooms    int       `json:"bedrooms"`
	Bathrooms   int       `json:"bathrooms"`
	Rating      float64   `json:"rating"`
	Facilities  []string  `json:"facilities"`
	Image       string    `json:"image"`
	AgentID     string    `json:"agent_id,omitempty"`
	Agent       *Agent    `json:"agent,omitempty"`
	Reviews     []Review  `json:"reviews,omitempty"`
	Gallery     []Gallery `json:"gallery,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Agent is the estate agent responsible for a property.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// Review is a rating left on a property.
type Review struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Review    string    `json:"review"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// Gallery is one extra picture of a property.
type Gallery struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

// User is the signed-in account as shown in the app.
type User struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Avatar        string         `json:"avatar"`
	EmailVerified bool           `json:"email_verification"`
	Prefs         map[string]any `json:"prefs,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	AccessedAt    string         `json:"accessed_at"`
}
