// ABOUTME: Plain data-transfer objects exchanged across the repository boundary
// ABOUTME: Flat, JSON-serializable shapes; never storage rows or domain models

package dto

// PriceDTO is a monetary value with its currency code.
type PriceDTO struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// AddressDTO holds a billing or shipping address.
type AddressDTO struct {
	Address1   string `json:"address1,omitempty"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country,omitempty"`
	Name       string `json:"name,omitempty"`
	Company    string `json:"company,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// CustomerDTO identifies the person an order belongs to.
type CustomerDTO struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// OrderItemDTO is one line item of an order.
type OrderItemDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	SKU          string   `json:"sku,omitempty"`
	Quantity     float64  `json:"quantity"`
	TaxRate      float64  `json:"taxRate"`
	Price        PriceDTO `json:"price"`
	PriceInclTax PriceDTO `json:"priceInclTax"`
}

// OrderNoteDTO is a free-form note attached to an order.
type OrderNoteDTO struct {
	Date    string `json:"date"`
	Message string `json:"message"`
	Author  string `json:"author,omitempty"`
}

// StatusChangeDTO records one transition of an order's status.
type StatusChangeDTO struct {
	Date      string `json:"date"`
	Message   string `json:"message,omitempty"`
	OldStatus string `json:"oldStatus,omitempty"`
	NewStatus string `json:"newStatus"`
}

// OrderDTO is the exemplar commerce entity. Price fields are always
// recomputed server-side from Items before persistence.
type OrderDTO struct {
	ID        string `json:"id"`
	AgentID   string `json:"agentId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	BillingAddress  AddressDTO        `json:"billingAddress,omitempty"`
	ShippingAddress AddressDTO        `json:"shippingAddress,omitempty"`
	Attributes      map[string]any    `json:"attributes,omitempty"`
	Notes           []OrderNoteDTO    `json:"notes,omitempty"`
	StatusChanges   []StatusChangeDTO `json:"statusChanges,omitempty"`
	Customer        CustomerDTO       `json:"customer,omitempty"`

	Status string `json:"status,omitempty"`
	Email  string `json:"email,omitempty"`

	Subtotal             PriceDTO `json:"subtotal"`
	SubTotalInclTax      PriceDTO `json:"subTotalInclTax"`
	SubtotalTaxValue     PriceDTO `json:"subtotalTaxValue"`
	Total                PriceDTO `json:"total"`
	TotalInclTax         PriceDTO `json:"totalInclTax"`
	ShippingPrice        PriceDTO `json:"shippingPrice"`
	ShippingMethod       string   `json:"shippingMethod,omitempty"`
	ShippingPriceTaxRate float64  `json:"shippingPriceTaxRate"`
	ShippingPriceInclTax PriceDTO `json:"shippingPriceInclTax"`

	Items []OrderItemDTO `json:"items,omitempty"`

	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// AgentDTO is an agent definition owned by a tenant.
type AgentDTO struct {
	ID             string         `json:"id"`
	DisplayName    string         `json:"displayName"`
	Prompt         string         `json:"prompt,omitempty"`
	WelcomeInfo    string         `json:"welcomeInfo,omitempty"`
	ExpectedResult string         `json:"expectedResult,omitempty"`
	SafetyRules    string         `json:"safetyRules,omitempty"`
	Published      bool           `json:"published"`
	Options        map[string]any `json:"options,omitempty"`
	Icon           string         `json:"icon,omitempty"`
	CreatedAt      string         `json:"createdAt,omitempty"`
	UpdatedAt      string         `json:"updatedAt,omitempty"`
}

// SessionDTO is one chat session between an end user and an agent.
type SessionDTO struct {
	ID            string `json:"id"`
	AgentID       string `json:"agentId"`
	UserName      string `json:"userName,omitempty"`
	UserEmail     string `json:"userEmail,omitempty"`
	AcceptedTerms bool   `json:"acceptedTerms"`
	Messages      string `json:"messages,omitempty"` // JSON-encoded transcript
	FinalizedAt   string `json:"finalizedAt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// ResultDTO is the finalized outcome of a session.
type ResultDTO struct {
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	UserName  string `json:"userName,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	Content   string `json:"content,omitempty"`
	Format    string `json:"format,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// StatDTO is one token-usage event to be folded into monthly aggregates.
type StatDTO struct {
	ID               string `json:"id,omitempty"`
	EventName        string `json:"eventName"`
	PromptTokens     int64  `json:"promptTokens"`
	CompletionTokens int64  `json:"completionTokens"`
	CreatedMonth     int    `json:"createdMonth,omitempty"`
	CreatedDay       int    `json:"createdDay,omitempty"`
	CreatedYear      int    `json:"createdYear,omitempty"`
	Counter          int64  `json:"counter,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
}

// KeyDTO is a shared access key granting scoped access to a tenant database.
type KeyDTO struct {
	KeyLocatorHash     string `json:"keyLocatorHash"`
	KeyHash            string `json:"keyHash"`
	DatabaseIDHash     string `json:"databaseIdHash"`
	EncryptedMasterKey string `json:"encryptedMasterKey,omitempty"`
	ACL                string `json:"acl,omitempty"` // JSON-encoded access rules
	ExpiryDate         string `json:"expiryDate,omitempty"`
	UpdatedAt          string `json:"updatedAt,omitempty"`
}

// AuditDTO is one entry of the partitioned per-tenant audit log.
type AuditDTO struct {
	ID            string `json:"id"`
	EventName     string `json:"eventName"`
	RecordLocator string `json:"recordLocator,omitempty"`
	Diff          string `json:"diff,omitempty"`
	IP            string `json:"ip,omitempty"`
	UA            string `json:"ua,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// Page is one page of a paginated listing along with the total match count.
type Page[T any] struct {
	Rows    []T    `json:"rows"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	OrderBy string `json:"orderBy"`
	Query   string `json:"query"`
}
