package quickbooks

import "time"

// tokenResponse is the body returned by Intuit's bearer token endpoint for
// both the authorization_code and refresh_token grants.
type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int    `json:"expires_in"`
	RefreshTokenExpiresIn int    `json:"x_refresh_token_expires_in"`
}

// tokenError is the OAuth2 error body from the token endpoint.
type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Ref is a QuickBooks entity reference {value, name}.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// MetaData carries QuickBooks audit timestamps.
type MetaData struct {
	CreateTime      time.Time `json:"CreateTime,omitempty"`
	LastUpdatedTime time.Time `json:"LastUpdatedTime,omitempty"`
}

// EmailAddress wraps an email address field.
type EmailAddress struct {
	Address string `json:"Address,omitempty"`
}

// TelephoneNumber wraps a phone number field.
type TelephoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

// PhysicalAddress is a QuickBooks postal address.
type PhysicalAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
}

// Customer is the QuickBooks Customer entity (fields this app uses).
type Customer struct {
	ID               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	DisplayName      string           `json:"DisplayName,omitempty"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *TelephoneNumber `json:"PrimaryPhone,omitempty"`
	BillAddr         *PhysicalAddress `json:"BillAddr,omitempty"`
	Active           *bool            `json:"Active,omitempty"`
	MetaData         *MetaData        `json:"MetaData,omitempty"`
	Sparse           bool             `json:"sparse,omitempty"`
}

// Item is the QuickBooks Item entity (fields this app uses).
type Item struct {
	ID          string    `json:"Id,omitempty"`
	SyncToken   string    `json:"SyncToken,omitempty"`
	Name        string    `json:"Name,omitempty"`
	SKU         string    `json:"Sku,omitempty"`
	Description string    `json:"Description,omitempty"`
	Type        string    `json:"Type,omitempty"`
	UnitPrice   float64   `json:"UnitPrice,omitempty"`
	Active      *bool     `json:"Active,omitempty"`
	MetaData    *MetaData `json:"MetaData,omitempty"`
	Sparse      bool      `json:"sparse,omitempty"`
}

// SalesItemLineDetail is the item detail of an invoice line.
type SalesItemLineDetail struct {
	ItemRef   Ref     `json:"ItemRef"`
	Qty       float64 `json:"Qty,omitempty"`
	UnitPrice float64 `json:"UnitPrice,omitempty"`
}

// InvoiceLine is a single line on an invoice.
type InvoiceLine struct {
	Amount              float64              `json:"Amount"`
	Description         string               `json:"Description,omitempty"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

// Invoice is the QuickBooks Invoice entity (fields this app uses).
// Local orders are pushed as invoices.
type Invoice struct {
	ID          string        `json:"Id,omitempty"`
	SyncToken   string        `json:"SyncToken,omitempty"`
	DocNumber   string        `json:"DocNumber,omitempty"`
	TxnDate     string        `json:"TxnDate,omitempty"`
	CustomerRef Ref           `json:"CustomerRef"`
	Line        []InvoiceLine `json:"Line"`
	MetaData    *MetaData     `json:"MetaData,omitempty"`
}

// queryEnvelope is the wrapper around query endpoint results.
type queryEnvelope struct {
	QueryResponse struct {
		Customer      []Customer `json:"Customer,omitempty"`
		Item          []Item     `json:"Item,omitempty"`
		Invoice       []Invoice  `json:"Invoice,omitempty"`
		StartPosition int        `json:"startPosition,omitempty"`
		MaxResults    int        `json:"maxResults,omitempty"`
	} `json:"QueryResponse"`
}

// entityEnvelope wraps single-entity create/read/update responses.
type entityEnvelope struct {
	Customer *Customer `json:"Customer,omitempty"`
	Item     *Item     `json:"Item,omitempty"`
	Invoice  *Invoice  `json:"Invoice,omitempty"`
}

// faultEnvelope is the QuickBooks error body.
type faultEnvelope struct {
	Fault struct {
		Type  string `json:"type"`
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
	} `json:"Fault"`
}
