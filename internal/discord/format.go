package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/opiyodhiambo/zrebot/internal/alias"
	"github.com/opiyodhiambo/zrebot/internal/voidcheck"
)

const (
	colorBlue   = 0x0000FF
	colorRed    = 0xFF0000
	colorYellow = 0xFFFF00
)

// maxDescription is Discord's embed description limit.
const maxDescription = 4096

func newEmbed(color int, description string) *discordgo.MessageEmbed {
	if len(description) > maxDescription {
		description = strings.ToValidUTF8(description[:maxDescription-3], "") + "..."
	}
	return &discordgo.MessageEmbed{
		Color:       color,
		Description: description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

func errorEmbed(description string) *discordgo.MessageEmbed {
	return newEmbed(colorRed, "❌ "+description)
}

func warningEmbed(description string) *discordgo.MessageEmbed {
	return newEmbed(colorYellow, "⚠️ "+description)
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// formatFound renders a matched reactor.
func formatFound(res voidcheck.Result) string {
	id := res.Identity
	var b strings.Builder
	fmt.Fprintf(&b, "🌍 **%s (%s) is reacted (out of `%d` reacts):** \n\n", id.Handle, id.UserID, res.TotalReactors)
	b.WriteString("Here is all the info I was able to find on the user you searched for...\n")
	b.WriteString("```\n")
	fmt.Fprintf(&b, "USERNAME: %s\n", id.Handle)
	fmt.Fprintf(&b, "DISPLAY NAME: %s\n", id.DisplayName)
	fmt.Fprintf(&b, "NICKNAME: %s\n", orNone(id.Nickname))
	fmt.Fprintf(&b, "EVENTNAME: %s\n", orNone(id.Alias))
	fmt.Fprintf(&b, "USERID: %s\n", id.UserID)
	b.WriteString("```\n\n")
	b.WriteString("As long as the IGN of this user is any of the names above, this user's wins **should not be voided.**")
	return b.String()
}

// checkResultEmbed maps a void check outcome to the reply shown to moderators.
func checkResultEmbed(res voidcheck.Result) *discordgo.MessageEmbed {
	switch res.Status {
	case voidcheck.StatusFound:
		return newEmbed(colorBlue, formatFound(res))
	case voidcheck.StatusNoReactions:
		return warningEmbed("No reactions found on the message")
	case voidcheck.StatusNoValidReactions:
		return warningEmbed("No valid user reactions found")
	default:
		return errorEmbed("That user is not reacted. **Try checking the user individually, or check the user name and not the discord name shown.** " +
			"If you are checking an event name, the win should be **voided.**")
	}
}

func relativeTime(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

// aliasEmbed renders one user's latest alias submission.
func aliasEmbed(who string, rec alias.Record) *discordgo.MessageEmbed {
	return newEmbed(colorBlue, fmt.Sprintf("🌍 **%s's Event Name Information:** \n\n"+
		"> **Name:** `%s` \n"+
		"> **Date Submitted:** %s \n\n"+
		"Please note: this was their most recent name submission, and is what their name should be ingame (or their discord name)",
		who, rec.Name, relativeTime(rec.SubmittedAt)))
}

// aliasSearchEmbed lists every alias containing query.
func aliasSearchEmbed(query string, records []alias.Record) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "🌍 **Event Name Data Matching `%s`**\n\n", query)
	for _, rec := range records {
		fmt.Fprintf(&b, "> <@%s> has submitted `%s` as their event name.\n\n", rec.UserID, rec.Name)
	}
	return newEmbed(colorBlue, b.String())
}
