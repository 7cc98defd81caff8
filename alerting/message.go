package alerting

import (
	"fmt"
	"html"
	"strings"

	"github.com/vibeguard/sentinel/entity"
)

// WhaleMessage renders the operator/subscriber alert. Telegram HTML parse
// mode, so every dynamic field goes through html.EscapeString.
func WhaleMessage(res *entity.ClassificationResult) string {
	var b strings.Builder
	if len(res.RiskTags) > 0 {
		b.WriteString("🚨 <b>Whale transfer with risk flags</b>\n")
	} else if res.IsWatchlist {
		b.WriteString("👁 <b>Watchlist whale transfer</b>\n")
	} else {
		b.WriteString("🐋 <b>Whale transfer</b>\n")
	}

	fmt.Fprintf(&b, "Amount: <b>%s %s</b> (~$%s)\n", formatAmount(res.Amount), assetName(res), formatAmount(res.AmountUSD))
	fmt.Fprintf(&b, "From: <code>%s</code>\n", html.EscapeString(res.From.Hex()))
	fmt.Fprintf(&b, "To: <code>%s</code>\n", html.EscapeString(res.To.Hex()))
	if res.Token != nil {
		fmt.Fprintf(&b, "Token: <code>%s</code>\n", html.EscapeString(res.Token.Hex()))
	}
	fmt.Fprintf(&b, "Block: %d\n", res.BlockNumber)
	fmt.Fprintf(&b, "Tx: <code>%s</code>", html.EscapeString(res.TxHash.Hex()))

	if len(res.RiskTags) > 0 {
		escaped := make([]string, len(res.RiskTags))
		for i, tag := range res.RiskTags {
			escaped[i] = html.EscapeString(tag)
		}
		fmt.Fprintf(&b, "\nRisk: <b>%s</b>", strings.Join(escaped, ", "))
	}
	return b.String()
}

// PersonalMessage renders the alert sent to the owners of a bound wallet.
func PersonalMessage(res *entity.ClassificationResult) string {
	var b strings.Builder
	b.WriteString("🔔 <b>Activity on your wallet</b>\n")
	fmt.Fprintf(&b, "Amount: <b>%s %s</b>", formatAmount(res.Amount), assetName(res))
	if res.AmountUSD > 0 {
		fmt.Fprintf(&b, " (~$%s)", formatAmount(res.AmountUSD))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "From: <code>%s</code>\n", html.EscapeString(res.From.Hex()))
	fmt.Fprintf(&b, "To: <code>%s</code>\n", html.EscapeString(res.To.Hex()))
	fmt.Fprintf(&b, "Tx: <code>%s</code>", html.EscapeString(res.TxHash.Hex()))
	return b.String()
}

func assetName(res *entity.ClassificationResult) string {
	if res.Token != nil {
		return "tokens"
	}
	return "native"
}

func formatAmount(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.4f", v)
}
