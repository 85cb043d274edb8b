// Command wiatool inspects, extracts, and creates WIA/RVZ disc-image
// containers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/wiatool/wia"
	"github.com/wiatool/wia/wiacodec"
	"github.com/wiatool/wia/wiaconv"
)

var (
	inputFile  = flag.String("i", "", "input file path (required)")
	outputFile = flag.String("o", "", "output file path (required for -x and -c)")
	infoMode   = flag.Bool("info", false, "print container header info and exit")
	extract    = flag.Bool("x", false, "extract logical image data from -i into -o")
	create     = flag.Bool("c", false, "create a WIA/RVZ container from the raw image at -i, writing to -o")
	jsonOutput = flag.Bool("json", false, "output -info as JSON")
	rvz        = flag.Bool("rvz", false, "with -c, write the RVZ variant instead of WIA")
	codecName  = flag.String("codec", "zstd", "with -c, compression codec: none, purge, bzip2, lzma, lzma2, zstd")
	level      = flag.Int("level", 0, "with -c, compression level (codec-dependent range, 0 picks the codec's lowest allowed level)")
	chunkSize  = flag.Uint("chunk", 2*1024*1024, "with -c, chunk size in bytes")
	jobs       = flag.Int("jobs", 4, "with -c, max concurrent group compressors")
	version    = flag.Bool("version", false, "print version and exit")
)

const appVersion = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -i <file> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Inspects, extracts, and creates WIA/RVZ disc-image containers.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -i game.wia -info\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i game.wia -x -o game.iso\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i game.iso -c -rvz -codec zstd -level 19 -o game.rvz\n", os.Args[0])
	}
	flag.Parse()

	if *version {
		fmt.Printf("wiatool version %s\n", appVersion)
		os.Exit(0)
	}

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Error: input file required (-i)\n")
		flag.Usage()
		os.Exit(1)
	}

	switch {
	case *infoMode:
		runInfo(*inputFile)
	case *extract:
		runExtract(*inputFile, *outputFile)
	case *create:
		runCreate(*inputFile, *outputFile)
	default:
		fmt.Fprintf(os.Stderr, "Error: one of -info, -x, -c is required\n")
		flag.Usage()
		os.Exit(1)
	}
}

func runInfo(path string) {
	r, err := wia.Open(path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", path, err)
		os.Exit(1)
	}
	defer r.Close()

	info := r.Info()
	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		out := map[string]any{
			"format":             info.BlobType.String(),
			"version":            wia.FormatVersion(info.Version),
			"version_compatible": wia.FormatVersion(info.VersionCompatible),
			"disc_type":          info.DiscType.String(),
			"compression":        info.CompressionType.String(),
			"compression_level":  info.CompressionLevel,
			"chunk_size":         info.ChunkSize,
			"data_size":          info.DataSize,
			"raw_size":           info.RawSize,
			"partitions":         info.NumPartitions,
			"raw_data_entries":   info.NumRawData,
			"groups":             info.NumGroups,
		}
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Format: %s (version %s, read-compatible with %s)\n",
		info.BlobType, wia.FormatVersion(info.Version), wia.FormatVersion(info.VersionCompatible))
	fmt.Printf("Disc type: %s\n", info.DiscType)
	fmt.Printf("Compression: %s (level %d)\n", info.CompressionType, info.CompressionLevel)
	fmt.Printf("Chunk size: %d bytes\n", info.ChunkSize)
	fmt.Printf("Logical size: %d bytes\n", info.DataSize)
	fmt.Printf("Container size: %d bytes\n", info.RawSize)
	fmt.Printf("Partitions: %d\n", info.NumPartitions)
	fmt.Printf("Raw data entries: %d\n", info.NumRawData)
	fmt.Printf("Groups: %d\n", info.NumGroups)
}

func runExtract(inPath, outPath string) {
	if outPath == "" {
		fmt.Fprintf(os.Stderr, "Error: output file required (-o) with -x\n")
		os.Exit(1)
	}

	r, err := wia.Open(inPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", inPath, err)
		os.Exit(1)
	}
	defer r.Close()

	out, err := os.Create(outPath) //nolint:gosec // path is caller-supplied, same trust model as the input path
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", outPath, err)
		os.Exit(1)
	}
	defer out.Close()

	const bufSize = 4 * 1024 * 1024
	buf := make([]byte, bufSize)
	total := r.DataSize()
	for offset := uint64(0); offset < total; {
		n := bufSize
		if remaining := total - offset; remaining < uint64(n) {
			n = int(remaining)
		}
		if err := r.Read(offset, uint64(n), buf[:n]); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading at offset %d: %v\n", offset, err)
			os.Exit(1)
		}
		if _, err := out.WriteAt(buf[:n], int64(offset)); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing at offset %d: %v\n", offset, err)
			os.Exit(1)
		}
		offset += uint64(n)
	}
}

func runCreate(inPath, outPath string) {
	if outPath == "" {
		fmt.Fprintf(os.Stderr, "Error: output file required (-o) with -c\n")
		os.Exit(1)
	}

	codec, err := parseCodec(*codecName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	src, err := newFileSource(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", inPath, err)
		os.Exit(1)
	}
	defer src.Close()

	out, err := os.Create(outPath) //nolint:gosec // path is caller-supplied, same trust model as the input path
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", outPath, err)
		os.Exit(1)
	}
	defer out.Close()

	variant := wia.BlobWIA
	if *rvz {
		variant = wia.BlobRVZ
	}

	lvl := *level
	if lvl == 0 {
		lvl, _ = wiacodec.LevelRange(codec)
	}

	opts := wiaconv.Options{
		Variant:          variant,
		Compression:      codec,
		CompressionLevel: lvl,
		ChunkSize:        uint32(*chunkSize),
		MaxConcurrency:   *jobs,
		AllowJunkReuse:   true,
		Progress: func(groupsDone, _, bytesWritten, totalGroups uint64) bool {
			fmt.Fprintf(os.Stderr, "\rgroup %d/%d (%d bytes written)", groupsDone, totalGroups, bytesWritten)
			return true
		},
	}

	if err := wiaconv.Convert(context.Background(), src, src, nil, out, opts); err != nil {
		fmt.Fprintf(os.Stderr, "\nError converting %s: %v\n", inPath, err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr)
}

func parseCodec(name string) (wiacodec.Type, error) {
	switch name {
	case "none":
		return wiacodec.None, nil
	case "purge":
		return wiacodec.Purge, nil
	case "bzip2":
		return wiacodec.Bzip2, nil
	case "lzma":
		return wiacodec.LZMA, nil
	case "lzma2":
		return wiacodec.LZMA2, nil
	case "zstd":
		return wiacodec.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown codec %q (want none, purge, bzip2, lzma, lzma2, or zstd)", name)
	}
}
