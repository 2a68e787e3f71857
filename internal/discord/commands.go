package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/opiyodhiambo/zrebot/internal/alias"
	"github.com/opiyodhiambo/zrebot/internal/voidcheck"
)

const (
	cmdVoidChecker = "void-checker"
	cmdEventName   = "eventname"
	subCheck       = "check"

	optReactionMessage = "reaction-message"
	optUserName        = "user-name"
	optUser            = "user"
	optName            = "name"
)

// interactionTimeout bounds the work behind one deferred reply; Discord keeps the token for 15 minutes.
const interactionTimeout = 2 * time.Minute

// Checker runs void checks.
type Checker interface {
	Check(ctx context.Context, req voidcheck.CheckRequest) (voidcheck.Result, error)
}

// AliasReader is the read side of the alias store used by /eventname check.
type AliasReader interface {
	Get(ctx context.Context, userID string) (alias.Record, error)
	GetExact(ctx context.Context, userID, name string) (alias.Record, error)
	Search(ctx context.Context, query string) ([]alias.Record, error)
}

// responder is the part of *discordgo.Session that answers interactions.
type responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Commands serves the moderator slash commands.
type Commands struct {
	logger   *slog.Logger
	checker  Checker
	aliases  AliasReader
	modRoles []string
}

// NewCommands creates the command handlers. Members with BAN_MEMBERS or one of modRoles may use them.
func NewCommands(log *slog.Logger, checker Checker, aliases AliasReader, modRoles []string) *Commands {
	if log == nil {
		log = slog.Default()
	}
	return &Commands{
		logger:   log.With(slog.String("service", "discord_commands")),
		checker:  checker,
		aliases:  aliases,
		modRoles: modRoles,
	}
}

// Definitions returns the application commands to register.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdVoidChecker,
			Description: "Check a message for user reactions",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: optReactionMessage, Description: "The ID or link of the message to check", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: optUserName, Description: "Check an EVENTNAME, username, nickname, or user ID"},
				{Type: discordgo.ApplicationCommandOptionUser, Name: optUser, Description: "Check a user"},
			},
		},
		{
			Name:        cmdEventName,
			Description: "Event name tools",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subCheck,
					Description: "Check a user's event name (moderator only)",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: optUser, Description: "The user to check"},
						{Type: discordgo.ApplicationCommandOptionString, Name: optName, Description: "Query an eventname"},
					},
				},
			},
		},
	}
}

// Register overwrites the bot's commands in guildID (global when empty). The session must be open.
func (c *Commands) Register(s *discordgo.Session, guildID string) error {
	if s.State == nil || s.State.User == nil {
		return errors.New("register commands: session is not open")
	}
	cmds, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Definitions())
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	c.logger.Info("commands registered", slog.String("guild_id", guildID), slog.Int("count", len(cmds)))
	return nil
}

// Handler returns the interaction handler to add to the session; ctx bounds every interaction it serves.
func (c *Commands) Handler(ctx context.Context) func(*discordgo.Session, *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Interaction == nil {
			return
		}
		c.handle(ctx, s, ic.Interaction)
	}
}

func (c *Commands) handle(ctx context.Context, r responder, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != cmdVoidChecker && data.Name != cmdEventName {
		return
	}
	log := c.logger.With(slog.String("command", data.Name), slog.String("interaction_id", i.ID))

	if !isModerator(i.Member, c.modRoles) {
		msg := "You don't have permission to use this command."
		if data.Name == cmdEventName {
			msg = "You don't have permission to check event names. This command is only available to moderators."
		}
		c.reply(log, r, i, errorEmbed(msg))
		return
	}

	err := r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Error("defer reply failed", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	var embed *discordgo.MessageEmbed
	switch data.Name {
	case cmdVoidChecker:
		embed = c.voidCheck(ctx, i, data)
	case cmdEventName:
		embed = c.eventName(ctx, data)
	}
	if _, err := r.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	}); err != nil {
		log.Error("follow-up failed", slog.Any("error", err))
	}
}

func (c *Commands) reply(log *slog.Logger, r responder, i *discordgo.Interaction, embed *discordgo.MessageEmbed) {
	err := r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Error("reply failed", slog.Any("error", err))
	}
}

func (c *Commands) voidCheck(ctx context.Context, i *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) *discordgo.MessageEmbed {
	opts := optionsOf(data.Options)
	channelID, messageID, err := parseMessageRef(opts.str(optReactionMessage), i.ChannelID)
	if err != nil {
		return errorEmbed(err.Error())
	}
	q := voidcheck.Query{UserID: opts.userID(optUser), Name: opts.str(optUserName)}
	if q.Empty() {
		return errorEmbed("You must provide an input option for a user scanner")
	}

	res, err := c.checker.Check(ctx, voidcheck.CheckRequest{
		GuildID:   i.GuildID,
		ChannelID: channelID,
		MessageID: messageID,
		Query:     q,
	})
	switch {
	case errors.Is(err, voidcheck.ErrMessageNotFound):
		return errorEmbed(fmt.Sprintf("Could not find that message (Error %s). **RUN THIS COMMAND IN THE CHANNEL THE MESSAGE IS IN**", notFoundReason(err)))
	case err != nil:
		c.logger.Error("void check failed", slog.String("message_id", messageID), slog.Any("error", err))
		return errorEmbed("An error occurred while processing the message: " + err.Error())
	}
	return checkResultEmbed(res)
}

func (c *Commands) eventName(ctx context.Context, data discordgo.ApplicationCommandInteractionData) *discordgo.MessageEmbed {
	if len(data.Options) == 0 || data.Options[0].Name != subCheck {
		return errorEmbed("Invalid subcommand!")
	}
	opts := optionsOf(data.Options[0].Options)
	userID := opts.userID(optUser)
	name := alias.NormalizeName(opts.str(optName))
	who := displayUser(data.Resolved, userID)

	var (
		embed *discordgo.MessageEmbed
		err   error
	)
	switch {
	case userID != "" && name != "":
		var rec alias.Record
		if rec, err = c.aliases.GetExact(ctx, userID, name); err == nil {
			embed = aliasEmbed(who, rec)
		} else if errors.Is(err, alias.ErrNotFound) {
			return errorEmbed(fmt.Sprintf("There was no event name data matching both `%s` and `%s`", who, name))
		}
	case userID != "":
		var rec alias.Record
		if rec, err = c.aliases.Get(ctx, userID); err == nil {
			embed = aliasEmbed(who, rec)
		} else if errors.Is(err, alias.ErrNotFound) {
			return errorEmbed(fmt.Sprintf("There is no event name data for `%s`", who))
		}
	case name != "":
		var records []alias.Record
		if records, err = c.aliases.Search(ctx, name); err == nil {
			if len(records) == 0 {
				return errorEmbed(fmt.Sprintf("No data found matching `%s`", name))
			}
			embed = aliasSearchEmbed(name, records)
		}
	default:
		return warningEmbed("You must provide either a user or a name to check")
	}
	if err != nil {
		c.logger.Error("event name check failed", slog.Any("error", err))
		return errorEmbed("An error occurred while processing your request: " + err.Error())
	}
	return embed
}

// isModerator reports whether member holds BAN_MEMBERS (or administrator) or a moderator role.
func isModerator(member *discordgo.Member, modRoles []string) bool {
	if member == nil {
		return false
	}
	if member.Permissions&(discordgo.PermissionBanMembers|discordgo.PermissionAdministrator) != 0 {
		return true
	}
	for _, role := range member.Roles {
		if slices.Contains(modRoles, role) {
			return true
		}
	}
	return false
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	out := make(options, len(opts))
	for _, o := range opts {
		if o != nil {
			out[o.Name] = o
		}
	}
	return out
}

func (o options) str(name string) string {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return strings.TrimSpace(opt.StringValue())
}

func (o options) userID(name string) string {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionUser {
		return ""
	}
	return opt.UserValue(nil).ID
}

// displayUser names userID by the resolved username when Discord supplied it.
func displayUser(resolved *discordgo.ApplicationCommandInteractionDataResolved, userID string) string {
	if resolved != nil {
		if u, ok := resolved.Users[userID]; ok && u != nil && u.Username != "" {
			return u.Username
		}
	}
	return "<@" + userID + ">"
}

// parseMessageRef accepts a message id or a message link and returns the
// channel and message ids. A bare id is looked up in defaultChannel.
func parseMessageRef(raw, defaultChannel string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("a message id or link is required")
	}
	if idx := strings.Index(raw, "/channels/"); idx >= 0 {
		parts := strings.Split(strings.Trim(raw[idx+len("/channels/"):], "/"), "/")
		if len(parts) != 3 || !isSnowflake(parts[1]) || !isSnowflake(parts[2]) {
			return "", "", fmt.Errorf("%q is not a message link", raw)
		}
		return parts[1], parts[2], nil
	}
	if !isSnowflake(raw) {
		return "", "", fmt.Errorf("%q is not a message id", raw)
	}
	return defaultChannel, raw, nil
}

func isSnowflake(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// notFoundReason strips the sentinel prefix so replies show only the platform's reason.
func notFoundReason(err error) string {
	reason := strings.TrimPrefix(err.Error(), voidcheck.ErrMessageNotFound.Error())
	reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
	if reason == "" {
		return "unknown message"
	}
	return reason
}
