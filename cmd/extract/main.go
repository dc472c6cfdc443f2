// Command extract parses a result sheet PDF locally and writes the export
// files without Postgres or Temporal.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"resultzone/internal/catalog"
	"resultzone/internal/config"
	"resultzone/internal/extract"
	"resultzone/internal/models"
	"resultzone/internal/report"
	"resultzone/internal/util"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	in := flag.String("in", "", "result sheet PDF, or - for stdin")
	outDir := flag.String("out", "", "output directory (default <data-out>/local/<file name>)")
	mode := flag.String("mode", cfg.ExtractMode, "page or document")
	batch := flag.Int("batch", cfg.MaxConcurrentPages, "pages decoded concurrently per batch")
	institute := flag.String("institute", cfg.InstituteFilter, "only parse the first page naming this institute")
	roll := flag.String("roll", "", "print the result of one roll number")
	subjectsPath := flag.String("subjects", cfg.SubjectCatalogPath, "subject catalog JSON")
	studentsPath := flag.String("students", cfg.StudentDirPath, "student directory JSON")
	keepEmpty := flag.Bool("keep-empty", !cfg.SkipEmptyPages, "keep pages with no header and no rolls")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	m, err := extract.ParseMode(*mode)
	if err != nil {
		log.Fatal(err)
	}
	subjects, err := catalog.LoadSubjects(*subjectsPath)
	if err != nil {
		log.Printf("subject catalog unavailable path=%s err=%v", *subjectsPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	doc, err := openInput(*in)
	if err != nil {
		log.Fatal(err)
	}
	defer doc.Close()

	texts, err := extract.ExtractPages(ctx, doc, *batch)
	if err != nil {
		log.Fatalf("extract %s: %v", *in, err)
	}
	if !extract.HasText(texts) {
		log.Printf("warning file=%s err=%v", *in, util.ErrNoExtractableText)
	}
	opts := extract.Options{BatchSize: *batch, Mode: m, SkipEmpty: !*keepEmpty}
	var res extract.Result
	if strings.TrimSpace(*institute) != "" {
		res, err = extract.ParseInstitute(texts, *institute, opts)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		res = extract.ParseTexts(texts, opts)
	}

	dir := *outDir
	if dir == "" {
		name := strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
		if *in == "-" {
			name = "stdin"
		}
		dir = filepath.Join(cfg.DataOutRoot, "local", name)
	}
	resultsPath, err := report.WriteArtifacts(dir, report.Bundle{Records: res.Records, Meta: res.Meta, Pages: texts, Subjects: subjects})
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("extracted file=%s pages=%d records=%d semester=%s regulation=%s out=%s",
		filepath.Base(*in), res.PageCount, len(res.Records), res.Meta.Semester, res.Meta.Regulation, resultsPath)

	if *roll != "" {
		students, err := catalog.LoadStudents(*studentsPath)
		if err != nil {
			log.Printf("student directory unavailable path=%s err=%v", *studentsPath, err)
		}
		printRoll(*roll, res, subjects, students)
	}
}

func openInput(path string) (*extract.PDFDocument, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return extract.ReadPDF(data)
	}
	if err := util.CheckPDFFile(path); err != nil {
		return nil, err
	}
	return extract.OpenPDF(path)
}

func printRoll(roll string, res extract.Result, subjects *catalog.SubjectCatalog, students *catalog.StudentDirectory) {
	fmt.Printf("Roll: %s\nName: %s\n", roll, students.Name(roll))
	found := false
	for _, rec := range res.Records {
		for _, s := range rec.Students {
			if s.Roll != roll {
				continue
			}
			found = true
			printHit(rec, s, subjects, res.Meta.Semester)
		}
	}
	if !found {
		fmt.Println("Result: not found")
	}
}

func printHit(rec models.InstituteRecord, s models.StudentRecord, subjects *catalog.SubjectCatalog, semester string) {
	fmt.Printf("Institute: %s - %s, %s (page %d)\n", rec.InstitutionCode, rec.InstitutionName, rec.District, rec.Page)
	if s.GPA != nil {
		fmt.Printf("GPA: %s\n", report.Summary(s)[0])
		return
	}
	names := report.DisplayNames(s, subjects, semester)
	for i, line := range report.Summary(s) {
		fmt.Printf("  %s %s\n", line, names[i])
	}
}
