package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"reviewbot/internal/db"
	"reviewbot/internal/diff"
	"reviewbot/internal/gitlab"
	"reviewbot/internal/infra"
	"reviewbot/internal/llm"
	"reviewbot/internal/retriever"
	"reviewbot/internal/review"
	"reviewbot/internal/store"
)

// scenario is a canned diff for exercising the review pipeline without
// a GitLab instance.
type scenario struct {
	name string
	diff string
}

var scenarios = map[string]scenario{
	"security": {
		name: "Python code with security issues",
		diff: `diff --git a/src/auth.py b/src/auth.py
index 1234567..abcdef0 100644
--- a/src/auth.py
+++ b/src/auth.py
@@ -1,5 +1,20 @@
 import os
+import sqlite3
+import hashlib

-def login(user):
-    pass
+DB_PASSWORD = "super_secret_123"
+API_KEY = "sk-1234567890abcdef"
+
+def get_user(name):
+    conn = sqlite3.connect("app.db")
+    query = f"SELECT * FROM users WHERE name = '{name}'"
+    result = conn.execute(query)
+    return result.fetchone()
+
+def verify_password(password):
+    return hashlib.md5(password.encode()).hexdigest()
+
+def process(data):
+    try:
+        return data["key"]
+    except:
+        pass
`,
	},
	"java": {
		name: "Java resource leak and naming issues",
		diff: `diff --git a/src/main/java/com/example/UserService.java b/src/main/java/com/example/UserService.java
new file mode 100644
index 0000000..1234567
--- /dev/null
+++ b/src/main/java/com/example/UserService.java
@@ -0,0 +1,25 @@
+package com.example;
+
+import java.sql.*;
+import java.util.ArrayList;
+import java.util.List;
+
+public class UserService {
+    public List<String> Get_All_Users(String DB_URL) {
+        List<String> users = new ArrayList<>();
+        Connection conn = null;
+        try {
+            conn = DriverManager.getConnection(DB_URL);
+            Statement stmt = conn.createStatement();
+            ResultSet rs = stmt.executeQuery("SELECT * FROM users WHERE role = 'admin'");
+            while (rs.next()) {
+                users.add(rs.getString("name"));
+                System.out.println("Found user: " + rs.getString("name"));
+            }
+        } catch (Exception e) {
+            System.out.println("Error: " + e);
+            return null;
+        }
+        return users;
+    }
+}
`,
	},
	"performance": {
		name: "Python N+1 queries and code quality",
		diff: `diff --git a/src/report.py b/src/report.py
new file mode 100644
index 0000000..1234567
--- /dev/null
+++ b/src/report.py
@@ -0,0 +1,30 @@
+import time
+from database import db
+
+def generate_report(user_ids):
+    results = []
+    for uid in user_ids:
+        user = db.query(f"SELECT * FROM users WHERE id = {uid}")
+        orders = db.query(f"SELECT * FROM orders WHERE user_id = {uid}")
+        payments = db.query(f"SELECT * FROM payments WHERE user_id = {uid}")
+
+        total = 0
+        for o in orders:
+            total = total + o["amount"]
+        avg = total / len(orders)
+
+        results.append({
+            "user": user,
+            "order_count": len(orders),
+            "payment_count": len(payments),
+            "avg_amount": avg,
+            "generated_at": time.time()
+        })
+    return results
+
+def export_csv(data):
+    output = ""
+    for row in data:
+        output = output + str(row) + "\n"
+    return output
`,
	},
	"clean": {
		name: "Well-written code (should report no issues)",
		diff: `diff --git a/src/calculator.py b/src/calculator.py
new file mode 100644
index 0000000..1234567
--- /dev/null
+++ b/src/calculator.py
@@ -0,0 +1,20 @@
+"""Math utility module."""
+
+import logging
+from typing import Optional
+
+logger = logging.getLogger(__name__)
+
+
+def safe_divide(numerator: float, denominator: float) -> Optional[float]:
+    """Safe division. Returns None when dividing by zero."""
+    if denominator == 0:
+        logger.warning("division by zero attempted: numerator=%s", numerator)
+        return None
+    return numerator / denominator
+
+
+def clamp(value: float, min_val: float, max_val: float) -> float:
+    """Clamp value to the min_val..max_val range."""
+    return max(min_val, min(value, max_val))
`,
	},
}

var scenarioOrder = []string{"security", "java", "performance", "clean"}

type result struct {
	name     string
	comments int
	elapsed  time.Duration
}

func main() {
	diffFile := flag.String("diff", "", "path to a diff file to review")
	scenarioName := flag.String("scenario", "all", "scenario to run (security, java, performance, clean, all)")
	flag.Parse()

	config, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := infra.NewLogger("warn", config.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	pool, err := db.NewPool(ctx, config.Postgres.DSN, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	llmClient := llm.NewClient(config.Ollama.BaseURL, config.Ollama.LLMModel, config.Ollama.EmbedModel, logger)
	vectorStore := store.New(pool, logger)
	guidelineRetriever := retriever.New(llmClient, vectorStore, config.Review.RetrieverTopK, config.Review.ScoreThreshold)
	reviewer := review.NewReviewer(guidelineRetriever, llmClient, logger)

	fmt.Println("AI code review simulation")
	fmt.Println("-------------------------")

	var results []result

	if *diffFile != "" {
		r, err := runFromFile(ctx, *diffFile, reviewer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Review failed: %v\n", err)
			os.Exit(1)
		}
		results = append(results, r)
	} else {
		names := scenarioOrder
		if *scenarioName != "all" {
			if _, ok := scenarios[*scenarioName]; !ok {
				fmt.Fprintf(os.Stderr, "Unknown scenario: %s\n", *scenarioName)
				os.Exit(2)
			}
			names = []string{*scenarioName}
		}
		for _, name := range names {
			r, err := runScenario(ctx, name, scenarios[name], reviewer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Scenario %s failed: %v\n", name, err)
				os.Exit(1)
			}
			results = append(results, r)
		}
	}

	printTotals(results)
}

func runScenario(ctx context.Context, name string, sc scenario, reviewer *review.Reviewer) (result, error) {
	printHeader("Scenario: " + sc.name)
	return runDiff(ctx, name, sc.diff, reviewer)
}

func runFromFile(ctx context.Context, path string, reviewer *review.Reviewer) (result, error) {
	printHeader("Reviewing file: " + path)
	data, err := os.ReadFile(path)
	if err != nil {
		return result{}, err
	}
	return runDiff(ctx, path, string(data), reviewer)
}

func runDiff(ctx context.Context, name, diffText string, reviewer *review.Reviewer) (result, error) {
	parsed := diff.Parse(diffText)

	fmt.Printf("\n  Files: %d (reviewable: %d)\n", len(parsed.Files), len(parsed.ReviewableFiles()))
	for _, f := range parsed.ReviewableFiles() {
		fmt.Printf("    %s (+%d, -%d)\n", f.Filename, len(f.AddedLines()), len(f.DeletedLines()))
	}

	fmt.Println("\n  Requesting review from Ollama...")
	start := time.Now()
	comments, err := reviewer.Review(ctx, diffText)
	if err != nil {
		return result{}, err
	}
	elapsed := time.Since(start)

	fmt.Printf("  Took %.1fs, found %d issue(s)\n\n", elapsed.Seconds(), len(comments))
	printComments(comments)
	printSummaryPreview(comments)

	return result{name: name, comments: len(comments), elapsed: elapsed}, nil
}

func printComments(comments []review.Comment) {
	if len(comments) == 0 {
		fmt.Println("  No issues found.")
		return
	}
	for _, c := range comments {
		fmt.Printf("  %s [%s] %s:L%d\n", c.Severity.Emoji(), c.Severity, c.File, c.Line)
		fmt.Printf("    -> %s\n\n", c.Message)
	}
}

func printSummaryPreview(comments []review.Comment) {
	fmt.Println("  Summary comment preview:")
	for _, line := range strings.Split(gitlab.BuildSummary(comments), "\n") {
		fmt.Printf("  %s\n", line)
	}
}

func printTotals(results []result) {
	printHeader("Results")
	var totalComments int
	var totalTime time.Duration
	for _, r := range results {
		fmt.Printf("  %-30s %4d issue(s) %7.1fs\n", r.name, r.comments, r.elapsed.Seconds())
		totalComments += r.comments
		totalTime += r.elapsed
	}
	fmt.Printf("  %-30s %4d issue(s) %7.1fs\n", "total", totalComments, totalTime.Seconds())
}

func printHeader(text string) {
	fmt.Printf("\n======================================================================\n")
	fmt.Printf("  %s\n", text)
	fmt.Printf("======================================================================\n")
}
