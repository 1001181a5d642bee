// Command identify runs the recognition pipeline against a local audio file:
// decode, normalize for matching, upload to the recognition service, and
// print the candidate list as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"hummify/acr"
	"hummify/sound"
	"hummify/utils"
	"hummify/wav"

	"github.com/joho/godotenv"
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: identify <audio-file>")
		os.Exit(1)
	}
	_ = godotenv.Load()

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read %s: %v", path, err)
	}

	converter := wav.NewConverter(utils.GetEnv("FFMPEG_PATH", "ffmpeg"))
	normalizer := sound.NewNormalizer(converter, "tmp")
	matcher := acr.NewClient(acr.Config{
		Host:         utils.GetEnv("ACRCLOUD_HOST", ""),
		AccessKey:    utils.GetEnv("ACRCLOUD_ACCESS_KEY", ""),
		AccessSecret: utils.GetEnv("ACRCLOUD_ACCESS_SECRET", ""),
	})

	ctx := context.Background()

	clip, err := normalizer.Decode(ctx, data)
	if err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	samplePath, err := normalizer.ExportWav(normalizer.ForMatch(clip))
	if err != nil {
		log.Fatalf("failed to export sample: %v", err)
	}
	defer os.Remove(samplePath)

	result := matcher.Identify(ctx, samplePath)
	if result.Outcome == acr.OutcomeFailed {
		log.Fatalf("identification failed: %v", result.Err)
	}
	if result.Outcome == acr.OutcomeSkipped {
		log.Fatal("recognition credentials not configured (ACRCLOUD_HOST / ACRCLOUD_ACCESS_KEY / ACRCLOUD_ACCESS_SECRET)")
	}

	out, err := json.MarshalIndent(result.Matches, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode matches: %v", err)
	}
	fmt.Println(string(out))
}
