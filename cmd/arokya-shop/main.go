// Command arokya-shop is a terminal shopper for the storefront API. The cart
// and the bearer token live in Redis when REDIS_URL is set, otherwise in a
// session file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"arokya/internal/apperr"
	"arokya/internal/cart"
	"arokya/internal/checkout"
	"arokya/internal/client"
	"arokya/internal/config"
	"arokya/pkg/kvstore"

	"github.com/spf13/viper"
)

const usage = `usage: arokya-shop [-api URL] <command> [args]

commands:
  products                         list the catalog
  signup <name> <email> <password> create an account
  login <email> <password>         log in
  logout                           forget the stored token
  me                               show the logged-in user
  cart                             show the cart
  add <product id>                 add one unit to the cart
  dec <product id>                 take one unit out of the cart
  remove <product id>              drop a product from the cart
  clear                            empty the cart
  checkout                         pay for the cart
  orders                           list past orders
`

type shop struct {
	api  *client.APIClient
	cart *cart.Cart
	out  io.Writer
}

func main() {
	log.SetFlags(0)
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Fatal(err)
	}

	v := viper.New()
	v.SetDefault("API_URL", "http://localhost:8080/api")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SESSION_NAMESPACE", "arokya:session:default")
	v.SetDefault("SESSION_FILE", defaultSessionFile())
	v.AutomaticEnv()

	flags := flag.NewFlagSet("arokya-shop", flag.ExitOnError)
	apiURL := flags.String("api", v.GetString("API_URL"), "storefront API base URL")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = flags.Parse(os.Args[1:])
	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(v)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer closeStore()

	c, err := cart.Open(ctx, store)
	if err != nil {
		log.Fatalf("Failed to load cart: %v", err)
	}
	s := &shop{api: client.New(*apiURL, store), cart: c, out: os.Stdout}

	if err := s.run(ctx, flags.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flags.Usage()
			os.Exit(2)
		}
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "arokya", "session.json")
}

func openStore(v *viper.Viper) (kvstore.Store, func(), error) {
	if url := v.GetString("REDIS_URL"); url != "" {
		store, err := kvstore.NewRedisStore(kvstore.RedisOptions{URL: url, Namespace: v.GetString("SESSION_NAMESPACE")})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	store, err := kvstore.NewFileStore(v.GetString("SESSION_FILE"))
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

var errUsage = errors.New("usage")

func (s *shop) run(ctx context.Context, args []string) error {
	cmd, args := args[0], args[1:]
	switch {
	case cmd == "products" && len(args) == 0:
		return s.products(ctx)
	case cmd == "signup" && len(args) == 3:
		result, err := s.api.Signup(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Welcome, %s.\n", result.User.Name)
		return nil
	case cmd == "login" && len(args) == 2:
		result, err := s.api.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Logged in as %s.\n", result.User.Email)
		return nil
	case cmd == "logout" && len(args) == 0:
		return s.api.Logout(ctx)
	case cmd == "me" && len(args) == 0:
		me, err := s.api.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s <%s>\n", me.Name, me.Email)
		return nil
	case cmd == "cart" && len(args) == 0:
		s.showCart()
		return nil
	case cmd == "add" && len(args) == 1:
		return s.add(ctx, args[0])
	case cmd == "dec" && len(args) == 1:
		return s.cart.Decrement(ctx, args[0])
	case cmd == "remove" && len(args) == 1:
		return s.cart.Remove(ctx, args[0])
	case cmd == "clear" && len(args) == 0:
		return s.cart.Clear(ctx)
	case cmd == "checkout" && len(args) == 0:
		return s.checkout(ctx, newTerminalWidget(os.Stdin, s.out))
	case cmd == "orders" && len(args) == 0:
		return s.orders(ctx)
	}
	return errUsage
}

func (s *shop) products(ctx context.Context) error {
	products, err := s.api.ListProducts(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2))
	}
	return tw.Flush()
}

// add captures the catalog price at the moment the product goes in the cart.
func (s *shop) add(ctx context.Context, productID string) error {
	p, err := s.api.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	n, err := s.cart.Add(ctx, p.ID, p.Name, p.Price)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s added, %d item(s) in cart.\n", p.Name, n)
	return nil
}

func (s *shop) showCart() {
	if s.cart.IsEmpty() {
		fmt.Fprintln(s.out, "Cart is empty.")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tSUBTOTAL")
	for _, line := range s.cart.Lines() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", line.ProductID, line.Name, line.Quantity, line.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\tTOTAL\t%s\n", s.cart.Total().StringFixed(2))
	_ = tw.Flush()
}

// errLoginRequired is returned when checkout is attempted without a session
// that can record the order.
var errLoginRequired = errors.New("log in before checking out")

// checkout refuses to take a payment unless the order can be recorded
// afterwards, so a guest never pays for an order that lands in no ledger.
func (s *shop) checkout(ctx context.Context, widget checkout.Widget) error {
	if s.cart.IsEmpty() {
		return checkout.ErrEmptyCart
	}
	if _, err := s.api.Me(ctx); err != nil {
		if errors.Is(err, apperr.ErrAuth) {
			return fmt.Errorf("%w: %w", errLoginRequired, err)
		}
		return err
	}

	o := checkout.New(s.cart, s.api)
	result, err := o.Checkout(ctx, widget)
	if errors.Is(err, checkout.ErrRecordingFailed) {
		// money has moved; keep retrying only with the user watching
		fmt.Fprintf(s.out, "Payment %s went through but could not be recorded: %v\n", result.PaymentID, err)
		for attempt := 1; attempt <= 3 && ctx.Err() == nil; attempt++ {
			fmt.Fprintf(s.out, "Retrying (%d/3)...\n", attempt)
			if _, err = o.Confirm(ctx, ""); err == nil {
				break
			}
		}
		if err != nil {
			pending, _ := o.Discard()
			return fmt.Errorf("order %s (payment %s) is paid but unrecorded, keep these ids: %w", pending.OrderID, pending.PaymentID, err)
		}
		fmt.Fprintf(s.out, "Order %s recorded.\n", result.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	switch result.State {
	case checkout.PaymentConfirmed:
		fmt.Fprintf(s.out, "Paid. Order %s recorded.\n", result.OrderID)
	case checkout.PaymentCancelled:
		fmt.Fprintln(s.out, "Payment cancelled, your cart is unchanged.")
	}
	return nil
}

func (s *shop) orders(ctx context.Context) error {
	orders, err := s.api.ListOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(s.out, "No orders yet.")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tAMOUNT\tSTATUS\tDATE")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", o.OrderID, formatMinor(o.Amount), o.Currency, o.Status, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
