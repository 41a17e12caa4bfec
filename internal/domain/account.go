package domain

import "sort"

// ============================================================
// Accounts
// ============================================================

// Account is a bank account (card) as reported by the client-info endpoint.
type Account struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	CurrencyCode int      `json:"currencyCode"`
	CashbackType string   `json:"cashbackType,omitempty"`
	Balance      int64    `json:"balance"`
	CreditLimit  int64    `json:"creditLimit,omitempty"`
	MaskedPan    []string `json:"maskedPan,omitempty"`
	IBAN         string   `json:"iban"`
}

// ClientInfo is the response of the client-info endpoint.
type ClientInfo struct {
	ClientID    string    `json:"clientId"`
	Name        string    `json:"name"`
	WebHookURL  string    `json:"webHookUrl,omitempty"`
	Permissions string    `json:"permissions,omitempty"`
	Accounts    []Account `json:"accounts"`
}

// AccountsByBalanceDesc returns a copy of the accounts ordered by balance,
// highest first. Accounts with equal balance keep their API order.
func (c *ClientInfo) AccountsByBalanceDesc() []Account {
	if c == nil {
		return nil
	}
	accounts := make([]Account, len(c.Accounts))
	copy(accounts, c.Accounts)
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Balance > accounts[j].Balance
	})
	return accounts
}

// AccountSource records where an account was first connected from.
type AccountSource string

const (
	AccountSourceOnboarding AccountSource = "onboarding"
	AccountSourceSettings   AccountSource = "settings"
)

// Valid reports whether s is a known account source.
func (s AccountSource) Valid() bool {
	return s == AccountSourceOnboarding || s == AccountSourceSettings
}

// AccountSourceInfo is one entry of the account source map.
type AccountSourceInfo struct {
	Source  AccountSource `json:"source"`
	AddedAt int64         `json:"addedAt"` // unix millis
}

// AccountSourceMap maps account ids to where they were first seen.
type AccountSourceMap map[string]AccountSourceInfo

// WithAccounts returns a copy of m that also records every account not yet
// present. Existing entries are never overwritten.
func (m AccountSourceMap) WithAccounts(accounts []Account, source AccountSource, addedAtMillis int64) AccountSourceMap {
	next := make(AccountSourceMap, len(m)+len(accounts))
	for id, info := range m {
		next[id] = info
	}
	for _, account := range accounts {
		if _, ok := next[account.ID]; ok {
			continue
		}
		next[account.ID] = AccountSourceInfo{Source: source, AddedAt: addedAtMillis}
	}
	return next
}
