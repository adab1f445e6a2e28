package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/feed"
	"github.com/privcaster/privcaster/internal/model"
	"github.com/privcaster/privcaster/internal/service"
	"github.com/privcaster/privcaster/internal/session"
	"github.com/privcaster/privcaster/internal/wallet"
)

// app runs commands against one session. In shell mode the session, and with
// it the feed and any unconfirmed posts, lives across commands.
type app struct {
	sess   *session.Session
	in     io.Reader
	out    io.Writer
	json   bool
	loaded bool
}

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version":
		fmt.Fprintf(a.out, "privcaster %s (%s)\n", version, buildDate)
		return nil
	case "connect", "whoami":
		return a.whoami(ctx)
	case "identity":
		return a.identity(ctx)
	case "feed":
		return a.feed(ctx, false)
	case "refresh":
		return a.feed(ctx, true)
	case "post":
		return a.post(ctx, rest)
	case "like":
		return a.local(rest, "like", a.sess.ToggleLike)
	case "reply":
		return a.local(rest, "reply", a.sess.AddReply)
	case "tip":
		return a.tip(ctx, rest)
	case "rm":
		return a.remove(ctx, rest)
	case "records":
		return a.records(ctx, rest)
	case "decrypt":
		return a.decrypt(ctx, rest)
	case "sign":
		return a.sign(ctx, rest)
	case "transfer":
		return a.transfer(ctx, rest)
	case "pool":
		return a.pool(ctx, rest)
	case "claim":
		return a.claim(ctx, rest)
	case "group":
		return a.group(ctx, rest)
	case "member":
		return a.member(ctx, rest)
	case "group-payout":
		return a.groupPayout(ctx, rest)
	case "history":
		return a.history(ctx, rest)
	case "shell":
		return a.shell(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) connected(ctx context.Context) error {
	if a.sess.Address() != "" {
		return nil
	}
	_, err := a.sess.Connect(ctx)
	return err
}

func (a *app) ensureFeed(ctx context.Context) feed.Feed {
	if a.loaded {
		return a.sess.Feed()
	}
	a.loaded = true
	return a.sess.Open(ctx)
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.connected(ctx); err != nil {
		return err
	}
	id := a.sess.Identity()
	if a.json {
		printJSON(a.out, map[string]any{"address": a.sess.Address(), "identity": id})
		return nil
	}
	fmt.Fprintln(a.out, "address:", a.sess.Address())
	if id == nil {
		fmt.Fprintln(a.out, "identity: none yet (created with your first post)")
		return nil
	}
	printIdentity(a.out, *id)
	return nil
}

func (a *app) identity(ctx context.Context) error {
	if err := a.connected(ctx); err != nil {
		return err
	}
	id, err := a.sess.EnsureIdentity(ctx)
	if err != nil {
		return err
	}
	if a.json {
		printJSON(a.out, id)
		return nil
	}
	printIdentity(a.out, id)
	return nil
}

func printIdentity(w io.Writer, id model.Identity) {
	fmt.Fprintf(w, "user id: %s\nreputation: %d\nfollowers: %d\nfollowing: %d\n",
		id.UserID, id.ReputationScore, id.FollowerCount, id.FollowingCount)
}

func (a *app) feed(ctx context.Context, refresh bool) error {
	f := a.ensureFeed(ctx)
	if refresh {
		var err error
		if f, err = a.sess.Refresh(ctx); err != nil {
			return err
		}
	}
	a.printFeed(f)
	return nil
}

func (a *app) printFeed(f feed.Feed) {
	if a.json {
		printJSON(a.out, f)
		return
	}
	if len(f) == 0 {
		fmt.Fprintln(a.out, "no posts yet")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tAGE\tLIKES\tREPLIES\tFLAGS\tTEXT")
	for _, p := range f {
		likes := fmt.Sprint(p.LikeCount)
		if p.LikedByViewer {
			likes += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.AuthorHandle, p.TimeLabel, likes, p.ReplyCount, flags(p), p.Text)
	}
	_ = tw.Flush()
}

func flags(p model.Post) string {
	var fl []string
	if p.IsOnChain {
		fl = append(fl, "onchain")
	}
	if p.IsPrivate {
		fl = append(fl, "private")
	}
	if p.Unconfirmed {
		fl = append(fl, "unconfirmed")
	}
	if len(fl) == 0 {
		return "-"
	}
	return strings.Join(fl, ",")
}

func (a *app) post(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	fs.SetOutput(a.out)
	private := fs.Bool("private", false, "mark the post private")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text, err := readText(a.in, fs.Args())
	if err != nil {
		return err
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	a.ensureFeed(ctx)

	sub, err := a.sess.CreatePost(ctx, text, *private)
	if err != nil {
		return err
	}
	if a.json {
		printJSON(a.out, map[string]any{
			"state": sub.State.String(), "tx": sub.TxID, "post": sub.Post, "persisted": sub.PersistErr == nil,
		})
		return nil
	}
	fmt.Fprintf(a.out, "%s %s (tx %s)\n", sub.State, sub.Post.ID, sub.TxID)
	if sub.PersistErr != nil {
		fmt.Fprintln(a.out, "warning:", errs.UserMessage(sub.PersistErr))
	}
	return nil
}

func (a *app) local(args []string, name string, op func(string) (feed.Feed, bool)) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s <post-id>", errUsage, name)
	}
	a.ensureFeed(context.Background())
	if _, ok := op(args[0]); !ok {
		return fmt.Errorf("%w: post %s is not in the feed", errs.ErrNotFound, args[0])
	}
	p, _ := findPost(a.sess.Feed(), args[0])
	fmt.Fprintf(a.out, "%s: likes=%d liked=%t replies=%d\n", p.ID, p.LikeCount, p.LikedByViewer, p.ReplyCount)
	return nil
}

func findPost(f feed.Feed, id string) (model.Post, bool) {
	for _, p := range f {
		if p.ID == id {
			return p, true
		}
	}
	return model.Post{}, false
}

func (a *app) tip(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tip", flag.ContinueOnError)
	fs.SetOutput(a.out)
	author := fs.String("author", "", "author wallet address")
	amount := fs.Int64("amount", 0, "microcredits")
	postID := fs.String("post", "", "post id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	tx, err := a.sess.TipPost(ctx, *author, *amount, *postID)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "tip sent, tx", tx)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: rm <post-id>", errUsage)
	}
	a.ensureFeed(ctx)
	if _, err := a.sess.DeletePost(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "deleted", args[0])
	return nil
}

func (a *app) records(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("records", flag.ContinueOnError)
	fs.SetOutput(a.out)
	program := fs.String("program", wallet.CreditsProgram, "program id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	recs, err := a.sess.Records(ctx, *program)
	if err != nil {
		return err
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, string(r.Bytes()))
	}
	if a.json {
		printJSON(a.out, out)
		return nil
	}
	for _, r := range out {
		fmt.Fprintln(a.out, r)
	}
	return nil
}

func (a *app) decrypt(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: decrypt <ciphertext>", errUsage)
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	pt, err := a.sess.Decrypt(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, pt)
	return nil
}

func (a *app) sign(ctx context.Context, args []string) error {
	msg, err := readText(a.in, args)
	if err != nil {
		return err
	}
	if msg == "" {
		return fmt.Errorf("%w: sign <message>", errUsage)
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	sig, err := a.sess.Sign(ctx, msg)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, sig)
	return nil
}

func (a *app) transfer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	fs.SetOutput(a.out)
	to := fs.String("to", "", "recipient address")
	amount := fs.Uint64("amount", 0, "microcredits")
	fee := fs.Uint64("fee", 0, "fee in microcredits (0 uses the tip fee)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" || *amount == 0 {
		return fmt.Errorf("%w: transfer -to <address> -amount <n>", errUsage)
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	tx, err := a.sess.Transfer(ctx, *to, *amount, *fee)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "transfer submitted, tx", tx)
	return nil
}

func (a *app) pool(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pool", flag.ContinueOnError)
	fs.SetOutput(a.out)
	total := fs.Uint64("total", 0, "microcredits in the pool")
	recipients := fs.Uint64("recipients", 0, "number of recipients")
	criteria := fs.String("criteria", "", "eligibility criteria (only its hash goes on-chain)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *total == 0 || *recipients == 0 || *criteria == "" {
		return fmt.Errorf("%w: pool -total <n> -recipients <n> -criteria <text>", errUsage)
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	r, err := a.sess.CreatePayoutPool(ctx, *total, *recipients, *criteria)
	if err != nil {
		return err
	}
	a.printReceipt("pool created", r)
	return nil
}

func (a *app) claim(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(a.out)
	pool := fs.String("pool", "", "pool record ciphertext")
	amount := fs.Uint64("amount", 0, "microcredits")
	proof := fs.String("proof", "", "eligibility proof")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pool == "" || *amount == 0 || *proof == "" {
		return fmt.Errorf("%w: claim -pool <record> -amount <n> -proof <text>", errUsage)
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	r, err := a.sess.ClaimPayout(ctx, wallet.NewRecord([]byte(*pool)), *amount, *proof)
	if err != nil {
		return err
	}
	a.printReceipt("payout claimed", r)
	return nil
}

func (a *app) group(ctx context.Context, args []string) error {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return fmt.Errorf("%w: group <name>", errUsage)
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	r, err := a.sess.CreateGroup(ctx, name)
	if err != nil {
		return err
	}
	a.printReceipt("group created", r)
	return nil
}

func (a *app) member(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("member", flag.ContinueOnError)
	fs.SetOutput(a.out)
	group := fs.String("group", "", "group record ciphertext")
	address := fs.String("address", "", "member wallet address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *group == "" || *address == "" {
		return fmt.Errorf("%w: member -group <record> -address <addr>", errUsage)
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	r, err := a.sess.AddGroupMember(ctx, wallet.NewRecord([]byte(*group)), *address)
	if err != nil {
		return err
	}
	a.printReceipt("member added", r)
	return nil
}

func (a *app) groupPayout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("group-payout", flag.ContinueOnError)
	fs.SetOutput(a.out)
	pool := fs.String("pool", "", "pool record ciphertext")
	membership := fs.String("membership", "", "membership record ciphertext")
	amount := fs.Uint64("amount", 0, "microcredits")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pool == "" || *membership == "" || *amount == 0 {
		return fmt.Errorf("%w: group-payout -pool <record> -membership <record> -amount <n>", errUsage)
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	r, err := a.sess.GroupPayout(ctx, wallet.NewRecord([]byte(*pool)), wallet.NewRecord([]byte(*membership)), *amount)
	if err != nil {
		return err
	}
	a.printReceipt("group payout sent", r)
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(a.out)
	program := fs.String("program", wallet.DefaultProgram, "program id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.connected(ctx); err != nil {
		return err
	}
	h, err := a.sess.TransactionHistory(ctx, *program)
	if err != nil {
		return err
	}
	if a.json {
		printJSON(a.out, h)
		return nil
	}
	if len(h) == 0 {
		fmt.Fprintln(a.out, "no transactions")
		return nil
	}
	for _, e := range h {
		fmt.Fprintf(a.out, "%s  %s/%s  fee %d\n", e.ID, e.Program, e.Function, e.Fee)
	}
	return nil
}

func (a *app) printReceipt(what string, r service.Receipt) {
	if a.json {
		printJSON(a.out, r)
		return
	}
	if r.ID != "" {
		fmt.Fprintf(a.out, "%s, id %s, tx %s\n", what, r.ID, r.TxID)
		return
	}
	fmt.Fprintf(a.out, "%s, tx %s\n", what, r.TxID)
}

// shell reads commands line by line until EOF or "exit". Errors are printed
// and do not end the shell.
func (a *app) shell(ctx context.Context) error {
	sc := bufio.NewScanner(a.in)
	a.in = strings.NewReader("")
	fmt.Fprint(a.out, "> ")
	for sc.Scan() {
		args := strings.Fields(sc.Text())
		switch {
		case len(args) == 0:
		case args[0] == "exit" || args[0] == "quit":
			return nil
		case args[0] == "shell":
			fmt.Fprintln(a.out, "already in shell")
		default:
			if err := a.run(ctx, args); err != nil {
				fmt.Fprintln(a.out, "error:", describe(err))
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(a.out, "> ")
	}
	return sc.Err()
}

func describe(err error) string {
	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		return err.Error()
	}
	return errs.UserMessage(err)
}
