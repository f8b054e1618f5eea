package notionsync

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the mirrored databases.
const (
	PropRecordID     = "Record ID"
	PropChecksum     = "Checksum"
	PropAccountKey   = "Account"
	PropPurpose      = "Purpose"
	PropDate         = "Date"
	PropTime         = "Time"
	PropType         = "Type"
	PropBank         = "Bank"
	PropAccountName  = "Account Name"
	PropDirection    = "Direction"
	PropAmount       = "Amount"
	PropBalanceLeft  = "Balance Left"
	PropRefundStatus = "Refund Status"
	PropLinkedID     = "Linked ID"
	PropAccountType  = "Account Type"
	PropBalance      = "Balance"
)

// TransactionToNotionProperties converts a ledger record into the
// properties of a page in the transactions database. The Record ID and
// Checksum properties let later syncs find and diff the page.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	title := tx.Purpose
	if title == "" {
		title = tx.Type
	}

	props := notionapi.Properties{
		PropPurpose:     titleProp(title),
		PropRecordID:    textProp(tx.ID),
		PropChecksum:    textProp(Checksum(tx)),
		PropAccountName: textProp(tx.Account),
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: notionDate(tx.Date.In(time.UTC))},
		},
		PropDirection: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Direction())},
		},
		PropAmount: notionapi.NumberProperty{Number: tx.Amount.InexactFloat64()},
	}

	if tx.Time != "" {
		props[PropTime] = textProp(tx.Time)
	}
	// Notion rejects select options with empty names.
	if tx.Type != "" {
		props[PropType] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Type}}
	}
	if tx.Bank != "" {
		props[PropBank] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Bank}}
	}
	if tx.BalanceLeft != nil {
		props[PropBalanceLeft] = notionapi.NumberProperty{Number: tx.BalanceLeft.InexactFloat64()}
	}
	if tx.RefundStatus != "" {
		props[PropRefundStatus] = textProp(tx.RefundStatus)
	}
	if tx.LinkedID != "" {
		props[PropLinkedID] = textProp(tx.LinkedID)
	}

	return props
}

// AccountToNotionProperties converts a registry entry into the properties
// of a page in the accounts database, titled "<bank>/<account>".
func AccountToNotionProperties(acc domain.AccountEntry) notionapi.Properties {
	props := notionapi.Properties{
		PropAccountKey:  titleProp(acc.Key().String()),
		PropAccountName: textProp(acc.Account),
		PropBalance:     notionapi.NumberProperty{Number: acc.Balance.InexactFloat64()},
		PropChecksum:    textProp(accountChecksum(acc)),
	}
	if acc.Bank != "" {
		props[PropBank] = notionapi.SelectProperty{Select: notionapi.Option{Name: acc.Bank}}
	}
	if acc.Type != "" {
		props[PropAccountType] = notionapi.SelectProperty{Select: notionapi.Option{Name: acc.Type}}
	}
	return props
}

// Checksum fingerprints every rendered field of a record.
func Checksum(tx domain.Transaction) string {
	return digest(tx.Values())
}

func accountChecksum(acc domain.AccountEntry) string {
	return digest([]string{acc.Bank, acc.Account, acc.Type, acc.Balance.String()})
}

func digest(values []string) string {
	sum := sha256.Sum256([]byte(strings.Join(values, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

func titleProp(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Title: richText(s)}
}

func textProp(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{RichText: richText(s)}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

func notionDate(t time.Time) *notionapi.Date {
	d := notionapi.Date(t)
	return &d
}

// pageText returns the plain text of a title or rich text property.
// Pages read back from the API carry pointer properties; pages built
// locally carry values.
func pageText(page notionapi.Page, name string) string {
	var parts []notionapi.RichText
	switch p := page.Properties[name].(type) {
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case notionapi.RichTextProperty:
		parts = p.RichText
	case *notionapi.TitleProperty:
		parts = p.Title
	case notionapi.TitleProperty:
		parts = p.Title
	}
	if len(parts) == 0 {
		return ""
	}
	if parts[0].PlainText != "" {
		return parts[0].PlainText
	}
	if parts[0].Text != nil {
		return parts[0].Text.Content
	}
	return ""
}
