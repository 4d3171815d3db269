package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"plotline/internal/api"
)

func newOutputsCommand(ctx *commandContext) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "outputs <project-id>",
		Short: "List a project's characters, chapters, scenes or images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]
			return ctx.withClient(func(client *api.Client) error {
				switch strings.ToLower(strings.TrimSpace(kind)) {
				case "characters":
					list, err := client.Characters(cmd.Context(), projectID)
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, api.CharacterListResponse{Characters: list})
					}
					rows := make([][]string, 0, len(list))
					for _, ch := range list {
						rows = append(rows, []string{ch.Name, strings.Join(ch.Aliases, ", "), ch.Description})
					}
					return printRows(cmd, []string{"Name", "Aliases", "Description"}, rows, nil)
				case "chapters":
					list, err := client.Chapters(cmd.Context(), projectID)
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, api.ChapterListResponse{Chapters: list})
					}
					rows := make([][]string, 0, len(list))
					for _, ch := range list {
						rows = append(rows, []string{strconv.Itoa(ch.Index), ch.Title, strconv.Itoa(ch.Words)})
					}
					return printRows(cmd, []string{"#", "Title", "Words"}, rows, []columnAlignment{alignRight, alignLeft, alignRight})
				case "scenes":
					list, err := client.Scenes(cmd.Context(), projectID)
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, api.SceneListResponse{Scenes: list})
					}
					rows := make([][]string, 0, len(list))
					for _, sc := range list {
						rows = append(rows, []string{
							fmt.Sprintf("%d.%d", sc.ChapterIndex, sc.Index),
							sc.Title,
							strconv.Itoa(len(sc.CharacterIDs)),
							yesNo(sc.Prompt != ""),
						})
					}
					return printRows(cmd, []string{"Scene", "Title", "Characters", "Prompt"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
				case "images":
					list, err := client.Images(cmd.Context(), projectID)
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, api.ImageListResponse{Images: list})
					}
					rows := make([][]string, 0, len(list))
					for _, img := range list {
						rows = append(rows, []string{img.ID, img.SceneID, strconv.Itoa(img.Variant), img.MimeType, strconv.FormatInt(img.SizeBytes, 10), img.BlobKey})
					}
					return printRows(cmd, []string{"ID", "Scene", "Variant", "Type", "Bytes", "Blob"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight})
				default:
					return fmt.Errorf("unknown output kind %q (want characters, chapters, scenes or images)", kind)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "images", "Output kind: characters, chapters, scenes or images")
	return cmd
}

func printRows(cmd *cobra.Command, headers []string, rows [][]string, aligns []columnAlignment) error {
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing recorded yet")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
	return nil
}
