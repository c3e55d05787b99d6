package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/ledger"
	"github.com/jask/bankcat/internal/rules"
	"github.com/jask/bankcat/internal/service"
)

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func pct(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}

func transactionRows(txs []ledger.Transaction) [][]string {
	rows := make([][]string, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, []string{
			t.ID,
			t.Date.Format(ledger.DateLayout),
			money(t.Amount),
			t.Description,
			ledger.JoinLabel(t.Category, t.Subcategory),
			t.CategorizationSource,
		})
	}
	return rows
}

var transactionHeaders = []string{"ID", "Date", "Amount", "Description", "Category", "Source"}

func cmdImport(ctx context.Context, a *app, args []string) error {
	fs := flags("import")
	dir := fs.String("dir", a.cfg.Import.Dir, "directory of bank exports")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	res, err := a.ingester().Import(ctx, *dir)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("imported %d transactions", len(res.Transactions))))
	fmt.Fprintf(a.out, "files loaded %d, skipped %d, rows dropped %d, duplicates removed %d\n",
		res.FilesLoaded, res.FilesSkipped, res.RowsDropped, res.DuplicatesRemoved)
	for _, e := range res.LoadErrors {
		fmt.Fprintln(a.out, warnStyle.Render(e.Error()))
	}
	for _, e := range res.ParseErrors {
		fmt.Fprintln(a.out, dimStyle.Render(e.Error()))
	}
	return nil
}

func cmdCategorize(ctx context.Context, a *app, args []string) error {
	fs := flags("categorize")
	threshold := fs.Float64("threshold", a.cfg.ML.ConfidenceThreshold, "minimum model confidence")
	save := fs.Bool("save-labels", false, "add rule and model results to the labeled dataset")
	show := fs.Int("show", 10, "uncategorized transactions to list")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	svc := a.categorizer(ctx)
	svc.Threshold = *threshold
	sess := service.NewSession(nil)
	out, err := svc.Run(ctx, sess)
	if err != nil {
		return err
	}

	if len(out.Rules) > 0 {
		rows := make([][]string, 0, len(out.Rules))
		for _, r := range out.Rules {
			rows = append(rows, []string{r.RuleName, strconv.Itoa(r.Priority), strconv.Itoa(r.Matched), r.Error})
		}
		fmt.Fprintln(a.out, renderTable([]string{"Rule", "Priority", "Matched", "Error"}, rows))
	}
	if !out.MLAvailable {
		fmt.Fprintln(a.out, dimStyle.Render("no trained model; rules only"))
	}
	printStats(a, out.Stats)

	if *save {
		n, err := a.labeler().MergeOutcome(ctx, out)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("%d labels saved", n)))
	}

	var pending []ledger.Transaction
	for len(pending) < *show {
		t, ok := sess.NextUncategorized()
		if !ok {
			break
		}
		pending = append(pending, t)
		sess.Skip()
	}
	if len(pending) > 0 {
		fmt.Fprintln(a.out, titleStyle.Render("uncategorized"))
		fmt.Fprintln(a.out, renderTable(transactionHeaders, transactionRows(pending)))
	}
	return nil
}

func printStats(a *app, s service.Stats) {
	fmt.Fprintf(a.out, "%s %d of %d categorized (%s)\n",
		titleStyle.Render("coverage"), s.Categorized, s.Total, pct(s.Rate))
	methods := []string{ledger.SourceManual, service.MethodRule, service.MethodML}
	rows := make([][]string, 0, len(methods))
	for _, m := range methods {
		rows = append(rows, []string{m, strconv.Itoa(s.ByMethod[m])})
	}
	fmt.Fprintln(a.out, renderTable([]string{"Method", "Count"}, rows))
	top := s.TopCategories()
	if len(top) > 10 {
		top = top[:10]
	}
	if len(top) == 0 {
		return
	}
	rows = rows[:0]
	for _, c := range top {
		rows = append(rows, []string{c.Category, strconv.Itoa(c.Count)})
	}
	fmt.Fprintln(a.out, renderTable([]string{"Category", "Count"}, rows))
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	txs, err := a.transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return err
	}
	printStats(a, service.ComputeStats(txs))
	runs, err := a.runs.List(ctx, 5)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.Transactions), strconv.Itoa(r.RuleCategorized), strconv.Itoa(r.MLCategorized), strconv.Itoa(r.Skipped),
		})
	}
	fmt.Fprintln(a.out, titleStyle.Render("recent runs"))
	fmt.Fprintln(a.out, renderTable([]string{"Started", "Transactions", "Rule", "ML", "Skipped"}, rows))
	return nil
}

func cmdLabel(ctx context.Context, a *app, args []string) error {
	fs := flags("label")
	export := fs.String("export", "", "write the labeled dataset to FILE")
	imp := fs.String("import", "", "read a labeled dataset from FILE")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	svc := a.labeler()
	switch {
	case *export != "":
		f, err := os.Create(*export)
		if err != nil {
			return err
		}
		n, err := svc.Export(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("exported %d labels to %s", n, *export)))
		return nil
	case *imp != "":
		f, err := os.Open(*imp)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := svc.Import(ctx, f)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("imported %d labels", n)))
		return nil
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		return errUsage
	}
	id, category, sub := fs.Arg(0), fs.Arg(1), fs.Arg(2)
	if err := svc.Label(ctx, id, category, sub); err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render(id+" labeled "+ledger.JoinLabel(category, sub)))
	return nil
}

func cmdSuggest(ctx context.Context, a *app, args []string) error {
	fs := flags("suggest")
	k := fs.Int("k", 5, "suggestions to show")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	tx, err := a.transactions.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("%w: %s", service.ErrUnknownTransaction, fs.Arg(0))
	}
	fmt.Fprintln(a.out, titleStyle.Render(tx.Description))
	out, err := a.suggester().Similar(ctx, *tx, *k)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		fmt.Fprintln(a.out, dimStyle.Render("no similar labeled transactions"))
		return nil
	}
	rows := make([][]string, 0, len(out))
	for _, s := range out {
		rows = append(rows, []string{
			s.Transaction.Description,
			ledger.JoinLabel(s.Label.Category, s.Label.Subcategory),
			s.Label.Source,
			strconv.FormatFloat(s.Distance, 'f', 2, 64),
		})
	}
	fmt.Fprintln(a.out, renderTable([]string{"Description", "Label", "Source", "Distance"}, rows))
	return nil
}

func cmdTrain(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	_, sum, err := a.trainer().Train(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s: %d training, %d test samples, accuracy %s\n",
		successStyle.Render("trained"), sum.ModelType, sum.TrainingSamples, sum.TestSamples, pct(sum.Accuracy))
	if sum.SmallDataset {
		fmt.Fprintln(a.out, warnStyle.Render("small dataset: evaluated on training rows"))
	}
	rows := make([][]string, 0, len(sum.Labels))
	for _, l := range sum.Labels {
		m := sum.PerClass[l]
		rows = append(rows, []string{
			l,
			strconv.FormatFloat(m.Precision, 'f', 2, 64),
			strconv.FormatFloat(m.Recall, 'f', 2, 64),
			strconv.FormatFloat(m.F1, 'f', 2, 64),
			strconv.Itoa(m.Support),
		})
	}
	fmt.Fprintln(a.out, renderTable([]string{"Label", "Precision", "Recall", "F1", "Support"}, rows))
	fmt.Fprintln(a.out, dimStyle.Render("saved to "+a.cfg.Model.Path))
	return nil
}

// conditionFlags collects a single-condition tree or a full JSON tree.
type conditionFlags struct {
	field, op, value, tree *string
	caseSensitive          *bool
}

func addConditionFlags(fs interface {
	String(name, value, usage string) *string
	Bool(name string, value bool, usage string) *bool
}) conditionFlags {
	return conditionFlags{
		field:         fs.String("field", "description", "condition field"),
		op:            fs.String("op", rules.OpContains, "condition operator"),
		value:         fs.String("value", "", "condition value; JSON for lists and numbers"),
		tree:          fs.String("conditions", "", "full condition tree as JSON"),
		caseSensitive: fs.Bool("case-sensitive", false, "case-sensitive text match"),
	}
}

func (c conditionFlags) node() (rules.Node, error) {
	if *c.tree != "" {
		var n rules.Node
		if err := json.Unmarshal([]byte(*c.tree), &n); err != nil {
			return rules.Node{}, fmt.Errorf("conditions: %w", err)
		}
		return n, rules.Validate(n)
	}
	if *c.value == "" {
		return rules.Node{}, errUsage
	}
	var v any
	if err := json.Unmarshal([]byte(*c.value), &v); err != nil {
		v = *c.value
	}
	n := rules.Condition(*c.field, *c.op, v)
	n.CaseSensitive = *c.caseSensitive
	return n, rules.Validate(n)
}

func cmdRules(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "list":
		list := a.rules.List()
		rows := make([][]string, 0, len(list))
		for _, r := range list {
			state := successStyle.Render("on")
			if !r.Active {
				state = dimStyle.Render("off")
			}
			rows = append(rows, []string{
				r.ID, r.Name, strconv.Itoa(r.Priority), state,
				ledger.JoinLabel(r.Category, r.Subcategory), rules.Describe(r.Conditions),
			})
		}
		fmt.Fprintln(a.out, renderTable([]string{"ID", "Name", "Priority", "Active", "Category", "Conditions"}, rows))
		for _, s := range a.rules.StaleReferences(a.categories.Load()) {
			fmt.Fprintln(a.out, warnStyle.Render(fmt.Sprintf("%s: %v", s.RuleName, s.Err)))
		}
		return nil

	case "add":
		fs := flags("rules add")
		name := fs.String("name", "", "rule name")
		desc := fs.String("description", "", "rule description")
		category := fs.String("category", "", "category")
		subcategory := fs.String("subcategory", "", "subcategory")
		priority := fs.Int("priority", 50, "priority 1-100")
		cond := addConditionFlags(fs)
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		n, err := cond.node()
		if err != nil {
			return err
		}
		r, err := a.rules.Create(rules.Rule{
			Name: *name, Description: *desc, Category: *category, Subcategory: *subcategory,
			Priority: *priority, Active: true, Conditions: n,
		}, "cli")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render("created "+r.ID))
		return nil

	case "preview":
		fs := flags("rules preview")
		limit := fs.Int("limit", rules.DefaultPreviewLimit, "matches to show")
		cond := addConditionFlags(fs)
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		var n rules.Node
		if fs.NArg() == 1 {
			r, err := a.rules.Get(fs.Arg(0))
			if err != nil {
				return err
			}
			n = r.Conditions
		} else {
			var err error
			if n, err = cond.node(); err != nil {
				return err
			}
		}
		txs, err := a.transactions.List(ctx, repository.TransactionFilters{})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s matches %d of %d transactions\n",
			infoStyle.Render(rules.Describe(n)), rules.Count(n, txs), len(txs))
		if matches := rules.Preview(n, txs, *limit); len(matches) > 0 {
			fmt.Fprintln(a.out, renderTable(transactionHeaders, transactionRows(matches)))
		}
		return nil

	case "toggle":
		if len(args) != 1 {
			return errUsage
		}
		r, err := a.rules.Get(args[0])
		if err != nil {
			return err
		}
		if err := a.rules.SetActive(r.ID, !r.Active, "cli"); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s active=%t\n", r.ID, !r.Active)
		return nil

	case "delete":
		fs := flags("rules delete")
		yes := fs.Bool("yes", false, "skip confirmation")
		if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
			return errUsage
		}
		token, err := a.rules.RequestDelete(fs.Arg(0))
		if err != nil {
			return err
		}
		typed, err := a.confirm("rule "+fs.Arg(0), token, *yes)
		if err != nil {
			return err
		}
		if err := a.rules.ConfirmDelete(typed); err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render("deleted "+fs.Arg(0)))
		return nil
	}
	return errUsage
}

func cmdCategories(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	sub, args := args[0], args[1:]
	store := a.categories
	switch sub {
	case "list":
		doc := store.Load()
		var rows [][]string
		for _, name := range doc.Names() {
			c := doc.Categories[name]
			rows = append(rows, []string{name, "", activeMark(c.Active), c.Description})
			for _, sn := range doc.SubcategoryNames(name) {
				s := c.Subcategories[sn]
				rows = append(rows, []string{"", sn, activeMark(s.Active), s.Description})
			}
		}
		fmt.Fprintln(a.out, renderTable([]string{"Category", "Subcategory", "Active", "Description"}, rows))
		return nil
	case "seed":
		wrote, err := store.Seed()
		if err != nil {
			return err
		}
		if wrote {
			fmt.Fprintln(a.out, successStyle.Render("default categories written"))
		} else {
			fmt.Fprintln(a.out, dimStyle.Render("categories already present"))
		}
		return nil
	case "add":
		fs := flags("categories add")
		desc := fs.String("description", "", "description")
		if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
			return errUsage
		}
		return store.AddCategory(fs.Arg(0), *desc)
	case "add-sub":
		fs := flags("categories add-sub")
		desc := fs.String("description", "", "description")
		if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
			return errUsage
		}
		return store.AddSubcategory(fs.Arg(0), fs.Arg(1), *desc)
	case "rename":
		if len(args) != 2 {
			return errUsage
		}
		return store.RenameCategory(args[0], args[1])
	case "rename-sub":
		if len(args) != 3 {
			return errUsage
		}
		return store.RenameSubcategory(args[0], args[1], args[2])
	case "toggle":
		doc := store.Load()
		switch len(args) {
		case 1:
			c, ok := doc.Categories[args[0]]
			if !ok {
				return fmt.Errorf("unknown category %q", args[0])
			}
			return store.SetCategoryActive(args[0], !c.Active)
		case 2:
			s, ok := doc.Categories[args[0]].Subcategories[args[1]]
			if !ok {
				return fmt.Errorf("unknown subcategory %q", ledger.JoinLabel(args[0], args[1]))
			}
			return store.SetSubcategoryActive(args[0], args[1], !s.Active)
		}
		return errUsage
	case "delete":
		fs := flags("categories delete")
		yes := fs.Bool("yes", false, "skip confirmation")
		if err := fs.Parse(args); err != nil || fs.NArg() < 1 || fs.NArg() > 2 {
			return errUsage
		}
		category, subcategory := fs.Arg(0), fs.Arg(1)
		token, err := store.RequestDelete(category, subcategory)
		if err != nil {
			return err
		}
		typed, err := a.confirm(ledger.JoinLabel(category, subcategory), token, *yes)
		if err != nil {
			return err
		}
		if err := store.ConfirmDelete(typed); err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render("deleted "+ledger.JoinLabel(category, subcategory)))
		return nil
	}
	return errUsage
}

func activeMark(active bool) string {
	if active {
		return successStyle.Render("yes")
	}
	return dimStyle.Render("no")
}

func cmdBackup(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	path, m, err := a.backups().Create(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render("backup written to "+path))
	fmt.Fprintf(a.out, "%d categories, %d rules, %d transactions: %s\n",
		m.CategoriesCount, m.RulesCount, m.TransactionsCount, strings.Join(m.FilesIncluded, ", "))
	return nil
}

func cmdRestore(ctx context.Context, a *app, args []string) error {
	fs := flags("restore")
	txs := fs.Bool("transactions", false, "also replace the transaction table")
	labels := fs.Bool("labels", false, "also merge the labeled dataset")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	m, err := a.backups().Restore(ctx, fs.Arg(0), service.RestoreOptions{Transactions: *txs, Labels: *labels})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s from %s (version %s)\n", successStyle.Render("restored"), m.BackupDate.Local().Format("2006-01-02 15:04:05"), m.AppVersion)
	return nil
}

func cmdReset(ctx context.Context, a *app, args []string) error {
	fs := flags("reset")
	yes := fs.Bool("yes", false, "skip confirmation")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}
	if !*yes {
		typed, err := a.confirm("all transactions and labels", "reset", false)
		if err != nil {
			return err
		}
		if typed != "reset" {
			return fmt.Errorf("reset cancelled")
		}
	}
	if err := a.maintenance().Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render("database reset"))
	return nil
}
