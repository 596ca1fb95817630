// Package format renders token events as Telegram HTML messages.
//
// Everything here is a pure function of its inputs: the same event and
// metadata always produce byte-identical output.
package format

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"tokenbot/internal/model"
	"tokenbot/pkg/tgui"
)

const (
	timeLayout        = "2006-01-02 15:04:05 UTC"
	maxDescription    = 300
	solscanTokenURL   = "https://solscan.io/token/"
	unknownName       = "Unknown"
	unknownSymbol     = "N/A"
	missing           = "N/A"
	solanaAddressSize = 32
)

var (
	baseUnit = decimal.New(1, 9)
	thousand = decimal.New(1, 3)
	million  = decimal.New(1, 6)
	billion  = decimal.New(1, 9)
)

// Format builds the notification for ev. md may be nil when enrichment is
// disabled or found nothing.
func Format(ev model.Event, md *model.Metadata) model.Message {
	name, symbol := ev.Name(), ev.Symbol()
	var desc string
	var links []model.Link
	if md != nil {
		if md.Name != "" {
			name = md.Name
		}
		if md.Symbol != "" {
			symbol = md.Symbol
		}
		desc = md.Description
		links = md.Links.Ordered()
	}
	if name == "" {
		name = unknownName
	}
	if symbol == "" {
		symbol = unknownSymbol
	}

	var b tgui.Builder
	b.Line("🚀 ", tgui.B("New Token Initialized!"))
	b.Blank()

	b.Line("📊 ", tgui.B("Token Info:"))
	b.Line("• Name: ", tgui.Esc(name))
	b.Line("• Symbol: ", tgui.Esc(symbol))
	b.Line("• Mint: ", mintLine(ev.Mint))
	b.Line("• Supply: ", tgui.Esc(Compact(ev.Supply)))
	if desc != "" {
		b.Line("• Description: ", tgui.I(tgui.TruncRunes(desc, maxDescription)))
	}
	b.Blank()

	b.Line("⛓️ ", tgui.B("Blockchain Info:"))
	b.Line("• Block Height: ", tgui.Esc(Integer(ev.BlockHeight)))
	b.Line("• Transaction: ", code(ev.TxID))
	b.Line("• Timestamp: ", tgui.Esc(Timestamp(ev.Timestamp)))
	b.Blank()

	b.Line("💰 ", tgui.B("Economics:"))
	b.Line("• Total Tokens: ", tgui.Esc(Compact(ev.TotalTokens)))
	b.Line("• Initial Mint Size: ", tgui.Esc(BaseUnits(ev.InitialMintSize)))
	b.Line("• Total Mint Fee: ", tgui.Esc(BaseUnits(ev.TotalMintFee)), " SOL")
	b.Line("• Total Referrer Fee: ", tgui.Esc(BaseUnits(ev.TotalReferrerFee)), " SOL")
	b.Line("• Fee Rate: ", tgui.Esc(BaseUnits(ev.FeeRate)), " SOL")
	b.Line("• Status: ", tgui.Esc(model.Status(ev.Status).String()))
	b.Blank()

	b.Line("🔗 ", tgui.B("Accounts:"))
	b.Line("• Admin: ", code(ev.Admin))
	b.Line("• Config: ", code(ev.ConfigAccount))
	b.Line("• Token Vault: ", code(ev.TokenVault))
	b.Blank()

	b.Line("📈 ", tgui.B("Current Epoch:"))
	b.Line("• Era: ", tgui.Esc(Integer(ev.CurrentEra)))
	b.Line("• Epoch: ", tgui.Esc(Integer(ev.CurrentEpoch)))
	b.Line("• Mint Size: ", tgui.Esc(BaseUnits(ev.MintSizeEpoch)))
	b.Line("• Quantity Minted: ", tgui.Esc(BaseUnits(ev.QuantityMintedEpoch)))
	b.Line("• Target Mint Size: ", tgui.Esc(BaseUnits(ev.TargetMintSizeEpoch)))

	if len(links) > 0 {
		b.Blank()
		b.Line("🌐 ", tgui.B("Links:"))
		for _, l := range links {
			b.Line("• ", tgui.Link(l.Label, l.URL))
		}
	}

	if uri := ev.URI(); uri != "" && md == nil {
		b.Blank()
		b.Line("🔗 Metadata: ", tgui.Esc(uri))
	}

	msg := model.Message{Text: b.String()}
	if md != nil {
		msg.Image = md.Image
	}
	return msg
}

// Startup is the message broadcast once the bot is ready.
func Startup(dests int) string {
	var b tgui.Builder
	b.Line("🤖 ", tgui.B("Token bot is online"))
	b.Line(tgui.Esc(fmt.Sprintf("Watching for new tokens, delivering to %d destination(s).", dests)))
	return b.String()
}

// CaptionFits reports whether text can be used as a photo caption.
func CaptionFits(text string) bool { return tgui.FitsCaption(text) }

// Compact renders large counts with K/M/B suffixes and two decimals.
func Compact(v float64) string {
	d, ok := num(v)
	if !ok {
		return missing
	}
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(2) + "K"
	default:
		return d.StringFixed(2)
	}
}

// BaseUnits converts a 9-decimal base-unit amount to whole units.
func BaseUnits(v float64) string {
	d, ok := num(v)
	if !ok {
		return missing
	}
	return d.Div(baseUnit).StringFixed(2)
}

// Integer renders counters such as block height or epoch.
func Integer(v float64) string {
	d, ok := num(v)
	if !ok {
		return missing
	}
	return d.Truncate(0).String()
}

// num converts a scanned NUMERIC; NaN and infinities have no decimal form.
func num(v float64) (decimal.Decimal, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

// Timestamp renders unix seconds in UTC; non-positive or non-finite values
// are "N/A".
func Timestamp(unix float64) string {
	if !(unix > 0) || unix > math.MaxInt64/2 {
		return missing
	}
	return time.Unix(int64(unix), 0).UTC().Format(timeLayout)
}

// IsSolanaAddress reports whether s decodes as a 32-byte base58 key.
func IsSolanaAddress(s string) bool {
	if s == "" {
		return false
	}
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == solanaAddressSize
}

func mintLine(mint string) tgui.H {
	mint = strings.TrimSpace(mint)
	if !IsSolanaAddress(mint) {
		return code(mint)
	}
	return tgui.JoinH(" ", code(mint), tgui.Raw("("+tgui.Link("Solscan", solscanTokenURL+mint).String()+")"))
}

func code(s string) tgui.H {
	s = strings.TrimSpace(s)
	if s == "" {
		return tgui.Esc(missing)
	}
	return tgui.Code(s)
}
