package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/olekukonko/tablewriter"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sqlquery/sqlquery/query"
)

func main() {
	check := flag.Bool("check", false, "report what would change without touching the database")
	quiet := flag.Bool("quiet", false, "suppress the rendered row table, print only the outcome")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-check] [-quiet] request.yaml\n", os.Args[0])
		os.Exit(2)
	}

	outcome := run(flag.Arg(0), *check, *quiet)

	encoded, err := json.Marshal(outcome)
	if err != nil {
		log.Fatalf("encode outcome: %v", err)
	}
	fmt.Println(string(encoded))

	if outcome.Failed {
		os.Exit(1)
	}
}

func run(path string, check, quiet bool) query.Outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return query.NewOutcome(nil, fmt.Errorf("read request: %w", err))
	}

	req, err := query.ParseRequest(data)
	if err != nil {
		return query.NewOutcome(nil, err)
	}
	req.CheckMode = check

	db, dialect, err := query.Open(req.Name)
	if err != nil {
		return query.NewOutcome(nil, err)
	}
	defer db.Close()

	res, err := query.New(db, dialect).Execute(context.Background(), req)
	if err != nil {
		log.Printf("execute %s on %q: %v (%s)", req.State, req.Table, err, query.Classify(err))
		return query.NewOutcome(nil, err)
	}

	if !quiet && len(res.Rows) > 0 {
		renderRows(req, res.Rows)
	}
	return query.NewOutcome(res, nil)
}

func renderRows(req *query.Request, rows []query.Row) {
	header := make([]string, 0, len(req.Columns))
	if req.State == query.StateCount {
		header = append(header, "count")
	} else {
		for _, col := range req.Columns {
			header = append(header, col.Name)
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		rendered := make([]string, len(header))
		for i, name := range header {
			if val, ok := row[name]; ok && val != nil {
				rendered[i] = fmt.Sprintf("%v", val)
			}
		}
		out = append(out, rendered)
	}
	table.AppendBulk(out)
	table.Render()

	fmt.Printf("(%d results)\n", len(rows))
}
