package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/truehome/estate/internal/cli"
	"github.com/truehome/estate/internal/estate"
)

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printProperties(props []estate.Property) error {
	if a.opts.output == "json" {
		return a.printJSON(props)
	}
	if len(props) == 0 {
		a.out.Info("No results")
		return nil
	}

	tw := tabwriter.NewWriter(a.out.Writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tPRICE\tRATING\tADDRESS")
	for _, p := range props {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
			p.ID, p.Name, p.Type, formatPrice(p.Price), p.Rating, p.Address)
	}
	return tw.Flush()
}

func (a *app) printProperty(p *estate.Property) error {
	if a.opts.output == "json" {
		return a.printJSON(p)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", a.out.Colorize(p.Name, cli.ColorBold), p.Type)
	fmt.Fprintf(&b, "  %s\n", p.Address)
	fmt.Fprintf(&b, "  %s  rating %.1f\n", formatPrice(p.Price), p.Rating)
	fmt.Fprintf(&b, "  %d beds, %d baths, %.0f sqft\n", p.Bedrooms, p.Bathrooms, p.Area)
	if len(p.Facilities) > 0 {
		fmt.Fprintf(&b, "  Facilities: %s\n", strings.Join(p.Facilities, ", "))
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "\n  %s\n", p.Description)
	}
	if p.Agent != nil {
		fmt.Fprintf(&b, "\nAgent: %s <%s>\n", p.Agent.Name, p.Agent.Email)
	}
	if len(p.Gallery) > 0 {
		fmt.Fprintf(&b, "\nGallery (%d):\n", len(p.Gallery))
		for _, g := range p.Gallery {
			fmt.Fprintf(&b, "  %s\n", g.Image)
		}
	}
	fmt.Fprintf(&b, "\nReviews (%d):\n", len(p.Reviews))
	for _, r := range p.Reviews {
		fmt.Fprintf(&b, "  %s %s: %s\n", stars(r.Rating), r.Name, r.Review)
	}

	a.out.Printf("%s", b.String())
	return nil
}

func (a *app) printUser(u *estate.User) error {
	if a.opts.output == "json" {
		return a.printJSON(map[string]any{
			"isLoggedIn": u != nil,
			"user":       u,
		})
	}
	if u == nil {
		a.out.Info("Not signed in")
		return nil
	}
	a.out.Printf("%s <%s>\n", a.out.Colorize(u.Name, cli.ColorBold), u.Email)
	a.out.Printf("  id      %s\n", u.ID)
	a.out.Printf("  avatar  %s\n", u.Avatar)
	return nil
}

// stars renders a review rating clamped to 0..5.
func stars(rating int) string {
	return strings.Repeat("*", min(max(rating, 0), 5))
}

func formatPrice(v float64) string {
	return fmt.Sprintf("$%.0f", v)
}
