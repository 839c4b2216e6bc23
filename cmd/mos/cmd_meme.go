package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mos/internal/meme"
)

var (
	memeAddKind string
	memeAddFile string
	memeAddText string
	memeAddName string
	memeExecEnv string
	memeLinkWt  float64
)

// memeCmd groups meme management subcommands.
var memeCmd = &cobra.Command{
	Use:   "meme",
	Short: "Manage memes in the store",
}

var memeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a meme from --text or --file",
	RunE:  runMemeAdd,
}

var memeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memes (fitness descending)",
	RunE:  runMemeList,
}

var memeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one meme in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemeShow,
}

var memeExecCmd = &cobra.Command{
	Use:   "exec <id>",
	Short: "Execute a meme against an environment value",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemeExec,
}

var memeMutateCmd = &cobra.Command{
	Use:   "mutate <id>",
	Short: "Mutate a meme in place",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemeMutate,
}

var memeLinkCmd = &cobra.Command{
	Use:   "link <from> <to>",
	Short: "Connect two memes with a weighted link",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemeLink,
}

func init() {
	memeAddCmd.Flags().StringVar(&memeAddKind, "kind", "text", "Meme kind: code, text, data, image, model")
	memeAddCmd.Flags().StringVar(&memeAddFile, "file", "", "Read payload from file")
	memeAddCmd.Flags().StringVar(&memeAddText, "text", "", "Inline payload")
	memeAddCmd.Flags().StringVar(&memeAddName, "name", "", "Optional name metadata")
	memeExecCmd.Flags().StringVar(&memeExecEnv, "env", "", "Environment value (JSON or raw string)")
	memeLinkCmd.Flags().Float64Var(&memeLinkWt, "weight", 1.0, "Link weight")
}

func parseMemeID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid meme id %q: %w", arg, err)
	}
	return id, nil
}

func runMemeAdd(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	kind, err := meme.ParseKind(memeAddKind)
	if err != nil {
		return err
	}

	raw := memeAddText
	if memeAddFile != "" {
		data, err := os.ReadFile(memeAddFile)
		if err != nil {
			return fmt.Errorf("failed to read payload file: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return fmt.Errorf("one of --text or --file is required")
	}

	payload, err := payloadFromRaw(kind, raw)
	if err != nil {
		return err
	}

	m, err := meme.New(kind, payload)
	if err != nil {
		return fmt.Errorf("failed to create meme: %w", err)
	}
	if memeAddName != "" {
		m.Metadata["name"] = memeAddName
	}
	if err := rt.store.SaveMeme(m); err != nil {
		return fmt.Errorf("failed to save meme: %w", err)
	}

	fmt.Printf("added %s meme %s\n", m.Kind, m.ID)
	return nil
}

// payloadFromRaw converts CLI input to the kind's native payload type.
// Image and model memes come in through their persisted JSON/base64 forms.
func payloadFromRaw(kind meme.Kind, raw string) (any, error) {
	switch kind {
	case meme.KindText, meme.KindCode:
		return raw, nil
	case meme.KindData:
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("data meme payload must be a JSON object: %w", err)
		}
		return data, nil
	case meme.KindImage, meme.KindModel:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		payload, err := meme.DecodePayload(kind, encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return payload, nil
	}
	return nil, fmt.Errorf("%w: %q", meme.ErrUnknownKind, kind)
}

func runMemeList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	memes, err := rt.store.ListMemes()
	if err != nil {
		return err
	}
	if len(memes) == 0 {
		fmt.Println("no memes stored")
		return nil
	}

	fmt.Printf("%-36s %-6s %-8s %-6s %s\n", "id", "kind", "fitness", "links", "name")
	for _, m := range memes {
		fmt.Printf("%-36s %-6s %-8.4f %-6d %s\n", m.ID, m.Kind, m.Fitness, len(m.Connections), m.Metadata["name"])
	}
	return nil
}

func runMemeShow(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := parseMemeID(args[0])
	if err != nil {
		return err
	}
	m, err := rt.store.LoadMeme(id)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render meme: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runMemeExec(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := parseMemeID(args[0])
	if err != nil {
		return err
	}
	m, err := rt.store.LoadMeme(id)
	if err != nil {
		return err
	}

	var env any
	if memeExecEnv != "" {
		if err := json.Unmarshal([]byte(memeExecEnv), &env); err != nil {
			env = memeExecEnv
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := m.Execute(ctx, env)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", result)
		return nil
	}
	fmt.Println(string(out))
	return nil
}

func runMemeMutate(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := parseMemeID(args[0])
	if err != nil {
		return err
	}
	m, err := rt.store.LoadMeme(id)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if err := m.Mutate(rng); err != nil {
		return fmt.Errorf("mutation failed: %w", err)
	}
	if err := rt.store.SaveMeme(m); err != nil {
		return fmt.Errorf("failed to save mutated meme: %w", err)
	}

	fmt.Printf("mutated %s meme %s\n", m.Kind, m.ID)
	return nil
}

func runMemeLink(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	from, err := parseMemeID(args[0])
	if err != nil {
		return err
	}
	to, err := parseMemeID(args[1])
	if err != nil {
		return err
	}

	m, err := rt.store.LoadMeme(from)
	if err != nil {
		return err
	}
	if _, err := rt.store.LoadMeme(to); err != nil {
		return err
	}

	m.Connect(to, memeLinkWt)
	if err := rt.store.SaveLinks(from, m.Connections); err != nil {
		return fmt.Errorf("failed to save link: %w", err)
	}

	fmt.Printf("linked %s -> %s (weight %s)\n", from, to, strconv.FormatFloat(memeLinkWt, 'f', -1, 64))
	return nil
}
