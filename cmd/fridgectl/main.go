package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/vetkas2023/smart-fridge-frontend/credstore"
	"github.com/vetkas2023/smart-fridge-frontend/gateway"
	"github.com/vetkas2023/smart-fridge-frontend/internal/config"
	"github.com/vetkas2023/smart-fridge-frontend/internal/logging"
	"github.com/vetkas2023/smart-fridge-frontend/internal/utils"
	"github.com/vetkas2023/smart-fridge-frontend/scan"
	"github.com/vetkas2023/smart-fridge-frontend/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, session.ErrUnauthenticated) || errors.Is(err, gateway.ErrUnauthenticated) {
			fmt.Fprintln(os.Stderr, "Not logged in. Run: fridgectl login -email <email> -password <password>")
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	// A .env next to the binary is convenient for development; missing is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.LogLevel)

	if len(args) == 0 || args[0] == "help" {
		displayAppName(cfg.AppName)
		usage()
		return nil
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "login":
		return a.cmdLogin(ctx, args[1:])
	case "logout":
		return a.cmdLogout(ctx)
	case "whoami":
		return a.cmdWhoami(ctx)
	case "list":
		return a.cmdList(ctx, args[1:])
	case "scan":
		return a.cmdScan(ctx, args[1:])
	case "generate":
		return a.cmdGenerate(ctx, args[1:])
	case "delete":
		return a.cmdDelete(ctx, args[1:])
	case "cart":
		return a.cmdCart(ctx, args[1:])
	case "stats":
		return a.cmdStats(ctx, args[1:])
	case "types":
		return a.cmdTypes(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// app wires the client components together.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	gw         *gateway.Client
	sessions   *session.Manager
	reconciler *scan.Reconciler
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	store, err := credstore.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.NewClient(cfg.APIBaseURL,
		gateway.WithLogger(logger),
		gateway.WithUserAgent(cfg.UserAgent),
		gateway.WithTimeout(cfg.HTTPTimeout),
	)
	if err != nil {
		return nil, err
	}

	sessions, err := session.New(store, gw,
		session.WithLogger(logger),
		session.WithClientContext(session.ClientContext{UserAgent: cfg.UserAgent}),
	)
	if err != nil {
		return nil, err
	}
	gw.SetTokenSource(sessions)

	reconciler, err := scan.New(gw, scan.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, gw: gw, sessions: sessions, reconciler: reconciler}, nil
}

func (a *app) clientContext() session.ClientContext {
	return session.ClientContext{UserAgent: a.cfg.UserAgent}
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login requires -email and -password")
	}

	sess, err := a.sessions.Login(ctx, session.Credentials{Email: *email, Password: *password}, a.clientContext())
	if err != nil {
		return err
	}
	fmt.Printf("Logged in. Token valid until %s.\n", sess.ExpiresAt.Format(time.RFC1123))
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	if err := a.sessions.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func (a *app) cmdWhoami(ctx context.Context) error {
	id, err := a.sessions.CachedUserID(ctx)
	if err != nil {
		return err
	}
	user, err := a.gw.GetMe(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("User %s <%s>\n", id, user.Email)
	return nil
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fridgeID := fs.Int64("fridge", 0, "limit to one fridge id")
	sortBy := fs.String("sort", "expiry", "sort order: expiry, manufactured or name")
	search := fs.String("search", "", "filter by product type name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := gateway.FridgeProductFilter{}
	if *fridgeID > 0 {
		filter.FridgeIDEq = utils.Ptr(*fridgeID)
	}
	list, err := a.gw.GetFridgeProducts(ctx, filter)
	if err != nil {
		return err
	}

	items := list.Items
	if *search != "" {
		items = filterByTypeName(items, *search)
	}
	now := time.Now()
	sortItems(items, *sortBy, now)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRODUCT\tMANUFACTURED\tDAYS LEFT\tAMOUNT")
	for _, item := range items {
		name, manufactured, daysLeft := "?", "?", "?"
		amount := 0.0
		if item.Product != nil {
			manufactured = item.Product.ManufacturedAt
			amount = item.Product.Amount
			if item.Product.ProductType != nil {
				name = item.Product.ProductType.Name
			}
			if d, err := item.Product.DaysLeft(now); err == nil {
				daysLeft = fmt.Sprintf("%d", d)
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1f\n", item.ID, name, manufactured, daysLeft, amount)
	}
	return w.Flush()
}

func (a *app) cmdScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fridgeID := fs.Int64("fridge", 0, "target fridge id")
	payload := fs.String("payload", "", "decoded QR payload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fridgeID == 0 || *payload == "" {
		return errors.New("scan requires -fridge and -payload")
	}

	outcome, err := a.reconciler.Resolve(ctx, scan.ScanEvent{Payload: *payload, FridgeID: *fridgeID})
	if err != nil {
		return err
	}
	switch outcome.Kind {
	case scan.OutcomeLinked:
		fmt.Printf("Already tracked: record %d (fridge %d, product %d).\n",
			outcome.Record.ID, outcome.Record.FridgeID, outcome.Record.ProductID)
	case scan.OutcomeCreated:
		fmt.Printf("Added to fridge %d: record %d.\n", outcome.Record.FridgeID, outcome.Record.ID)
	}
	return nil
}

func (a *app) cmdGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	typeID := fs.Int64("type", 0, "product type id")
	manufactured := fs.String("manufactured", time.Now().Format("2006-01-02"), "manufacture date (YYYY-MM-DD)")
	amount := fs.Float64("amount", 0, "amount (grams or units)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *typeID == 0 {
		return errors.New("generate requires -type")
	}

	product, err := a.gw.CreateProduct(ctx, gateway.CreateProductRequest{
		ProductTypeID:  *typeID,
		ManufacturedAt: *manufactured,
		Amount:         *amount,
	})
	if err != nil {
		return err
	}
	// The QR code for the item encodes exactly this payload.
	fmt.Printf("Product %d registered. QR payload: %d\n", product.ID, product.ID)
	return nil
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := fs.Int64("id", 0, "fridge product record id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("delete requires -id")
	}
	if err := a.gw.DeleteFridgeProduct(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("Record %d deleted.\n", *id)
	return nil
}

func (a *app) cmdCart(ctx context.Context, args []string) error {
	action := "list"
	if len(args) > 0 {
		action = args[0]
		args = args[1:]
	}

	switch action {
	case "list":
		products, err := a.gw.GetCartProducts(ctx)
		if err != nil {
			return err
		}
		return printCart(products)
	case "add":
		fs := flag.NewFlagSet("cart add", flag.ContinueOnError)
		typeID := fs.Int64("type", 0, "product type id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *typeID == 0 {
			return errors.New("cart add requires -type")
		}
		entry, err := a.gw.CreateCartProduct(ctx, gateway.CreateCartProductRequest{ProductTypeID: *typeID})
		if err != nil {
			return err
		}
		fmt.Printf("Added to shopping list (entry %d).\n", entry.ID)
		return nil
	case "remove":
		fs := flag.NewFlagSet("cart remove", flag.ContinueOnError)
		id := fs.Int64("id", 0, "cart entry id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == 0 {
			return errors.New("cart remove requires -id")
		}
		if err := a.gw.DeleteCartProduct(ctx, *id); err != nil {
			return err
		}
		fmt.Printf("Entry %d removed from shopping list.\n", *id)
		return nil
	default:
		return fmt.Errorf("unknown cart action %q (expected list, add or remove)", action)
	}
}

func (a *app) cmdStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", "", "end date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := gateway.StatisticsFilter{}
	if *from != "" {
		filter.DateFrom = utils.Ptr(*from)
	}
	if *to != "" {
		filter.DateTo = utils.Ptr(*to)
	}
	stats, err := a.gw.GetStatistics(ctx, filter)
	if err != nil {
		return err
	}

	printStatsSection("Added", stats.Added)
	printStatsSection("Deleted", stats.Deleted)
	printStatsSection("Expired", stats.Exceeded)
	return nil
}

func (a *app) cmdTypes(ctx context.Context) error {
	types, err := a.gw.GetProductTypes(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSHELF LIFE")
	for _, pt := range types {
		fmt.Fprintf(w, "%d\t%s\t%s\n", pt.ID, pt.Name, pt.ExpPeriodBeforeOpening)
	}
	return w.Flush()
}

func filterByTypeName(items []gateway.FridgeProduct, query string) []gateway.FridgeProduct {
	query = strings.ToLower(query)
	filtered := make([]gateway.FridgeProduct, 0, len(items))
	for _, item := range items {
		if item.Product == nil || item.Product.ProductType == nil {
			continue
		}
		if strings.Contains(strings.ToLower(item.Product.ProductType.Name), query) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func sortItems(items []gateway.FridgeProduct, by string, now time.Time) {
	daysLeft := func(item gateway.FridgeProduct) int {
		if item.Product == nil {
			return 1 << 30
		}
		d, err := item.Product.DaysLeft(now)
		if err != nil {
			return 1 << 30
		}
		return d
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch by {
		case "manufactured":
			if a.Product == nil || b.Product == nil {
				return b.Product == nil && a.Product != nil
			}
			return a.Product.ManufacturedAt < b.Product.ManufacturedAt
		case "name":
			return typeName(a) < typeName(b)
		default: // expiry
			return daysLeft(a) < daysLeft(b)
		}
	})
}

func typeName(item gateway.FridgeProduct) string {
	if item.Product != nil && item.Product.ProductType != nil {
		return item.Product.ProductType.Name
	}
	return ""
}

// printCart groups entries by product type, the way the shopping list screen
// showed them.
func printCart(products []gateway.CartProduct) error {
	type group struct {
		name     string
		quantity int
	}
	groups := map[int64]*group{}
	order := []int64{}
	for _, p := range products {
		name := fmt.Sprintf("type %d", p.ProductTypeID)
		if p.ProductType != nil {
			name = p.ProductType.Name
		}
		if g, ok := groups[p.ProductTypeID]; ok {
			g.quantity++
			continue
		}
		groups[p.ProductTypeID] = &group{name: name, quantity: 1}
		order = append(order, p.ProductTypeID)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tPRODUCT\tQUANTITY")
	for _, id := range order {
		g := groups[id]
		fmt.Fprintf(w, "%d\t%s\t%d\n", id, g.name, g.quantity)
	}
	return w.Flush()
}

func printStatsSection(title string, entries []gateway.StatisticsEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Amount > entries[j].Amount })
	fmt.Printf("%s:\n", title)
	if len(entries) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, e := range entries {
		fmt.Printf("  %-20s %.1f\n", e.Name, e.Amount)
	}
}

func usage() {
	fmt.Println(`Usage: fridgectl <command> [flags]

Commands:
  login     -email <email> -password <password>
  logout
  whoami
  list      [-fridge <id>] [-sort expiry|manufactured|name] [-search <text>]
  scan      -fridge <id> -payload <text>
  generate  -type <id> [-manufactured <YYYY-MM-DD>] [-amount <n>]
  delete    -id <record id>
  cart      [list] | add -type <id> | remove -id <entry id>
  stats     [-from <YYYY-MM-DD>] [-to <YYYY-MM-DD>]
  types`)
}

func displayAppName(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
