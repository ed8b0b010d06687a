package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

var (
	turnText      string
	turnAudioFile string
	turnImageFile string
)

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Run a single inbound message through the agent",
	Long: `Processes one inbound message the way the WhatsApp webhook would and prints
the workflow, the reply and any card or voice note produced.

Example:
  ava turn --thread 5511999999999 --text "2 bedroom apartments in Miami under 500k?"
  ava turn --thread 5511999999999 --audio-file note.ogg
  ava turn --thread 5511999999999 --image-file plan.jpg --text "is this unit available?"`,
	Args: cobra.NoArgs,
	RunE: runTurn,
}

func init() {
	turnCmd.Flags().StringVar(&turnText, "text", "", "message text (the caption when an image is sent)")
	turnCmd.Flags().StringVar(&turnAudioFile, "audio-file", "", "voice note to transcribe")
	turnCmd.Flags().StringVar(&turnImageFile, "image-file", "", "image to describe")
	turnCmd.MarkFlagsMutuallyExclusive("audio-file", "image-file")
}

func runTurn(cmd *cobra.Command, _ []string) error {
	in, err := inboundFromFlags(turnText, turnAudioFile, turnImageFile)
	if err != nil {
		return err
	}

	a, thread, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.runner.ProcessTurn(cmd.Context(), thread, in)
	if err != nil {
		return err
	}
	path, err := saveAudio(audioOut, thread, out, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTurn(out, path))
	return nil
}

// inboundFromFlags builds the inbound message of a turn. The text becomes
// the caption when an image is attached.
func inboundFromFlags(text, audioFile, imageFile string) (model.Inbound, error) {
	var in model.Inbound
	switch {
	case audioFile != "":
		data, typ, err := readMedia(audioFile)
		if err != nil {
			return in, fmt.Errorf("read audio: %w", err)
		}
		in.Audio, in.AudioMIME = data, typ
	case imageFile != "":
		data, typ, err := readMedia(imageFile)
		if err != nil {
			return in, fmt.Errorf("read image: %w", err)
		}
		in.Image, in.ImageMIME, in.Caption = data, typ, text
		return in, nil
	}
	in.Text = text
	if in.Empty() {
		return in, errors.New("nothing to send: pass --text, --audio-file or --image-file")
	}
	return in, nil
}
