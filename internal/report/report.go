// Package report renders human-readable session summaries to a writer.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// WriteTradeHistory prints the closed-trade log as a table.
func WriteTradeHistory(out io.Writer, trades []model.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(out, "no closed trades")
		return
	}

	table := tablewriter.NewWriter(out)
	table.Header("#", "Symbol", "Side", "Qty", "Entry", "Exit", "PnL", "Opened", "Closed")

	var total float64
	for i, t := range trades {
		total += t.PnL
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.Symbol,
			string(t.Side),
			fmt.Sprintf("%.2f", t.Quantity),
			fmt.Sprintf("%.5f", t.EntryPrice),
			fmt.Sprintf("%.5f", t.ClosePrice),
			fmt.Sprintf("%+.2f", t.PnL),
			formatTime(t.EntryTime),
			formatTime(t.CloseTime),
		)
	}
	table.Render()

	fmt.Fprintf(out, "  %d trades, net %+.2f\n", len(trades), total)
}

// WriteAccountSummary prints the final account state.
func WriteAccountSummary(out io.Writer, acct model.AccountState, invested int64) {
	table := tablewriter.NewWriter(out)
	table.Header("Balance", "Equity", "Max Equity", "Max DD", "Margin Level", "Time Invested")
	table.Append(
		fmt.Sprintf("%.2f", acct.Balance),
		fmt.Sprintf("%.2f", acct.Equity),
		fmt.Sprintf("%.2f", acct.MaxEquity),
		fmt.Sprintf("%.2f", acct.MaxDrawdown),
		marginLevelLabel(acct.MarginLevel),
		(time.Duration(invested) * time.Second).String(),
	)
	table.Render()

	if acct.Blown {
		fmt.Fprintln(out, "  account blown: margin call closed all positions")
	}
}

func marginLevelLabel(level float64) string {
	if level >= 1e9 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", level)
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}
