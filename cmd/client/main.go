// Package main is a command-line client for the gallery download gate.
//
//	client -cmd request -token TOKEN -photo p1 -resolution web
//	client -cmd verify  -token TOKEN -pin 0042
//	client -cmd fetch   -token TOKEN -pin 0042 -out photo.jpg
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/client"
)

var (
	version   string
	buildDate string
)

func main() {
	var (
		cmd        string
		baseURL    string
		caFile     string
		token      string
		photoID    string
		collection string
		email      string
		resolution string
		pin        string
		out        string
		showVer    bool
	)

	flag.StringVar(&cmd, "cmd", "", "command: request | verify | fetch")
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&caFile, "ca", "", "path to CA cert for TLS servers")
	flag.StringVar(&token, "token", "", "share link access token")
	flag.StringVar(&photoID, "photo", "", "photo id (request)")
	flag.StringVar(&collection, "collection", "", "collection id (request)")
	flag.StringVar(&email, "email", "", "client email (request)")
	flag.StringVar(&resolution, "resolution", "", "web | high_res | original (request)")
	flag.StringVar(&pin, "pin", "", "4-digit PIN (verify, fetch)")
	flag.StringVar(&out, "out", "", "output file (fetch), defaults to the served filename")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("GalleryKeeper Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	httpClient, err := client.NewHTTPClient(caFile)
	if err != nil {
		log.Fatal(err)
	}
	c := client.New(baseURL, token, httpClient)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch cmd {
	case "request":
		grant, err := c.RequestPin(ctx, client.PinRequest{
			PhotoID:      photoID,
			CollectionID: collection,
			ClientEmail:  email,
			Resolution:   resolution,
		})
		if err != nil {
			log.Fatal(err)
		}
		printJSON(grant)
	case "verify":
		grant, err := c.VerifyPin(ctx, pin)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(grant)
	case "fetch":
		grant, err := c.VerifyPin(ctx, pin)
		if err != nil {
			log.Fatal(err)
		}
		if out == "" {
			out = filepath.Base(grant.Filename)
		}
		f, err := os.Create(out)
		if err != nil {
			log.Fatal(err)
		}
		n, err := c.Fetch(ctx, grant.DownloadURL, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(out)
			log.Fatal(err)
		}
		fmt.Printf("saved %s (%d bytes)\n", out, n)
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
