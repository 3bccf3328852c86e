package mozillion

// Session is the product of a successful login: the harvested cookie header
// and, when the portal set one, the URL-decoded XSRF token. The portal
// invalidates sessions server-side without notice; staleness is only
// discovered when a fetch fails.
type Session struct {
	CookieHeader string `json:"cookie_header"`
	XSRFToken    string `json:"xsrf_token,omitempty"`
}

// Credentials holds the login inputs for one account.
type Credentials struct {
	Email      string
	Password   string
	TOTPSecret string // optional second factor
	Origin     string // Origin header value, defaults to the portal base URL
}

// PlanIdentity identifies one SIM plan on the carrier account.
type PlanIdentity struct {
	OrderDetailID string `json:"order_detail_id"`
	SimPlanID     string `json:"sim_plan_id"`
	SimNumber     string `json:"sim_number,omitempty"`
	DisplayName   string `json:"display_name"`
}
