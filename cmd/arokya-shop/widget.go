package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"arokya/internal/checkout"
)

// terminalWidget stands in for the hosted payment widget: it shows the
// provider order and reads the outcome of the payment from the terminal.
type terminalWidget struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalWidget(in io.Reader, out io.Writer) *terminalWidget {
	return &terminalWidget{in: bufio.NewReader(in), out: out}
}

func (w *terminalWidget) Open(ctx context.Context, opts checkout.WidgetOptions) (checkout.WidgetResult, error) {
	fmt.Fprintf(w.out, "%s: %s\n", opts.Name, opts.Description)
	fmt.Fprintf(w.out, "Pay %s %s for order %s with key %s\n", formatMinor(opts.Amount), opts.Currency, opts.OrderID, opts.Key)

	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		for {
			line, err := w.in.ReadString('\n')
			if strings.TrimSpace(line) != "" {
				lines <- line
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()

	for {
		fmt.Fprint(w.out, "Enter 'paid <payment id>', 'failed <reason>' or 'cancel': ")
		select {
		case <-ctx.Done():
			return checkout.WidgetResult{}, ctx.Err()
		case err := <-errs:
			if err == io.EOF {
				return checkout.WidgetResult{State: checkout.PaymentCancelled}, nil
			}
			return checkout.WidgetResult{}, err
		case line := <-lines:
			if result, ok := parseAnswer(line); ok {
				return result, nil
			}
			fmt.Fprintln(w.out, "Not understood.")
		}
	}
}

func parseAnswer(line string) (checkout.WidgetResult, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return checkout.WidgetResult{}, false
	}
	switch strings.ToLower(fields[0]) {
	case "paid":
		if len(fields) != 2 {
			return checkout.WidgetResult{}, false
		}
		return checkout.WidgetResult{State: checkout.PaymentConfirmed, PaymentID: fields[1]}, true
	case "failed":
		reason := strings.TrimSpace(strings.Join(fields[1:], " "))
		if reason == "" {
			reason = "payment failed"
		}
		return checkout.WidgetResult{State: checkout.PaymentFailed, Reason: reason}, true
	case "cancel":
		return checkout.WidgetResult{State: checkout.PaymentCancelled}, true
	}
	return checkout.WidgetResult{}, false
}

// formatMinor renders minor units as a major-unit amount, 300000 -> 3000.00.
func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
