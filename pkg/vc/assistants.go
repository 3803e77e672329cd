package vc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/vc/ubot"

	"github.com/Laky-64/gologging"
	tg "github.com/amarnathcjd/gogram/telegram"
)

// AssistantStore remembers which assistant serves a chat.
type AssistantStore interface {
	GetAssistant(ctx context.Context, chatID int64) (string, error)
	SetAssistant(ctx context.Context, chatID int64, assistant string) error
}

// Assistants is the pool of userbot accounts that stream into voice chats.
type Assistants struct {
	mu               sync.RWMutex
	uBContext        map[string]*ubot.Context
	clients          map[string]*tg.Client
	availableClients []string
	clientCounter    int
	bot              *tg.Client
	store            AssistantStore
	bridgeDir        string
	statusCache      *cache.Cache[string]
	inviteCache      *cache.Cache[string]
}

func NewAssistants(store AssistantStore, bridgeDir string) *Assistants {
	return &Assistants{
		uBContext:     make(map[string]*ubot.Context),
		clients:       make(map[string]*tg.Client),
		clientCounter: 1,
		store:         store,
		bridgeDir:     bridgeDir,
		statusCache:   cache.NewCache[string](2 * time.Hour),
		inviteCache:   cache.NewCache[string](2 * time.Hour),
	}
}

// SetBot registers the bot account, which invites and unbans assistants.
func (a *Assistants) SetBot(bot *tg.Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bot = bot
	gologging.Info("The bot client has been added.")
}

func (a *Assistants) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.availableClients)
}

// StartClient logs in an assistant from a Pyrogram or gogram session string and adds it to the pool.
func (a *Assistants) StartClient(apiID int32, apiHash, stringSession string) (*ubot.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	clientName := fmt.Sprintf("client%d", a.clientCounter)
	mtProto, err := tg.NewClient(tg.ClientConfig{
		AppID:         apiID,
		AppHash:       apiHash,
		StringSession: assistantSession(stringSession),
		MemorySession: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create the MTProto client: %w", err)
	}

	if err := mtProto.Start(); err != nil {
		return nil, fmt.Errorf("failed to start the client: %w", err)
	}

	if mtProto.Me().Bot {
		return nil, fmt.Errorf("the client %s is a bot", clientName)
	}

	call, err := ubot.NewInstance(mtProto, a.bridgeDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create the ubot instance: %w", err)
	}

	a.uBContext[clientName] = call
	a.clients[clientName] = mtProto
	a.availableClients = append(a.availableClients, clientName)
	a.clientCounter++

	gologging.InfoF("[Assistants] Client %s has started successfully.", clientName)
	return call, nil
}

// StopAllClients stops every stream and logs the assistants out of their sessions.
func (a *Assistants) StopAllClients() {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, call := range a.uBContext {
		call.Close()
	}

	for name, client := range a.clients {
		gologging.InfoF("[Assistants] Stopping the client: %s", name)
		_ = client.Stop()
	}
}

// getClientName picks the assistant of a chat, keeping an earlier assignment when that
// account is still in the pool.
func (a *Assistants) getClientName(ctx context.Context, chatID int64) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.availableClients) == 0 {
		return "", ErrNoAssistant
	}

	if a.store != nil {
		assistant, err := a.store.GetAssistant(ctx, chatID)
		if err != nil {
			gologging.InfoF("[Assistants] DB.GetAssistant error: %v", err)
		}
		for _, name := range a.availableClients {
			if assistant != "" && name == assistant {
				return name, nil
			}
		}
	}

	newClient := a.availableClients[rand.Intn(len(a.availableClients))]
	if a.store != nil {
		if err := a.store.SetAssistant(ctx, chatID, newClient); err != nil {
			gologging.InfoF("[Assistants] DB.SetAssistant error: %v", err)
		}
	}

	gologging.InfoF("[Assistants] An assistant has been set for chat %d -> %s", chatID, newClient)
	return newClient, nil
}

// GetGroupAssistant returns the assistant serving chatID.
func (a *Assistants) GetGroupAssistant(ctx context.Context, chatID int64) (*ubot.Context, error) {
	clientName, err := a.getClientName(ctx, chatID)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	call, ok := a.uBContext[clientName]
	if !ok {
		return nil, fmt.Errorf("no assistant instance was found for %s", clientName)
	}
	return call, nil
}

// Transport makes sure the chat's assistant is a member and returns its call for chatID.
func (a *Assistants) Transport(ctx context.Context, chatID int64) (Transport, error) {
	ub, err := a.GetGroupAssistant(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := a.joinAssistant(ub, chatID); err != nil {
		return nil, err
	}
	return voiceCall{ub.Call(chatID)}, nil
}

// voiceCall adapts an assistant call to Transport.
type voiceCall struct {
	*ubot.Call
}

func (v voiceCall) Participants(ctx context.Context) ([]Participant, error) {
	members, err := v.Members(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Participant, len(members))
	for i, m := range members {
		out[i] = Participant{UserID: m.UserID, Self: m.Self}
	}
	return out, nil
}

// joinAssistant ensures the assistant is a member of the chat, unbanning it when the bot can.
func (a *Assistants) joinAssistant(ub *ubot.Context, chatID int64) error {
	a.mu.RLock()
	bot := a.bot
	a.mu.RUnlock()
	if bot == nil {
		return nil
	}
	ubID := ub.App.Me().ID

	status := a.checkUserStats(bot, chatID, ubID)
	gologging.InfoF("[Assistants - joinAssistant] Chat %d status is: %s", chatID, status)
	switch status {
	case tg.Member, tg.Admin, tg.Creator:
		return nil

	case tg.Left:
		return a.joinUb(bot, ub, chatID)

	case tg.Kicked, tg.Restricted:
		isMuted := status == tg.Restricted
		isBanned := status == tg.Kicked
		botStatus, err := bot.GetChatMember(chatID, bot.Me().ID)
		if err != nil {
			return fmt.Errorf("failed to check the bot's admin status: %v", err)
		}
		if botStatus.Status != tg.Admin && botStatus.Status != tg.Creator {
			return fmt.Errorf(
				"cannot unban or unmute the assistant (<code>%d</code>) because it is banned or restricted, and the bot lacks admin privileges",
				ubID,
			)
		}
		if botStatus.Rights != nil && !botStatus.Rights.BanUsers {
			return fmt.Errorf(
				"cannot unban or unmute the assistant (<code>%d</code>) because the bot lacks the ban users right",
				ubID,
			)
		}

		if _, err = bot.EditBanned(chatID, ubID, &tg.BannedOptions{Unban: isBanned, Unmute: isMuted}); err != nil {
			return fmt.Errorf("failed to unban the assistant (<code>%d</code>): %v", ubID, err)
		}
		if isBanned {
			return a.joinUb(bot, ub, chatID)
		}
		return nil

	default:
		return a.joinUb(bot, ub, chatID)
	}
}

func (a *Assistants) checkUserStats(bot *tg.Client, chatID, userID int64) string {
	cacheKey := fmt.Sprintf("%d:%d", chatID, userID)
	if cached, ok := a.statusCache.Get(cacheKey); ok {
		return cached
	}

	member, err := bot.GetChatMember(chatID, userID)
	if err != nil {
		if !strings.Contains(err.Error(), "USER_NOT_PARTICIPANT") {
			gologging.InfoF("[Assistants - checkUserStats] Failed to get the chat member: %v", err)
		}
		a.UpdateMembership(chatID, userID, tg.Left)
		return tg.Left
	}

	a.UpdateMembership(chatID, userID, member.Status)
	return member.Status
}

// joinUb makes the assistant join through the chat's invite link.
func (a *Assistants) joinUb(bot *tg.Client, ub *ubot.Context, chatID int64) error {
	cacheKey := fmt.Sprintf("%d", chatID)
	link, ok := a.inviteCache.Get(cacheKey)
	if !ok {
		inviteLink, err := bot.GetChatInviteLink(chatID)
		if err != nil {
			return fmt.Errorf("failed to get the invite link: %v", err)
		}
		linkObj, ok := inviteLink.(*tg.ChatInviteExported)
		if !ok {
			return fmt.Errorf("unexpected invite link type received: %T", inviteLink)
		}
		link = linkObj.Link
		a.inviteCache.Set(cacheKey, link)
	}

	ubID := ub.App.Me().ID
	if _, err := ub.App.JoinChannel(link); err != nil {
		switch {
		case strings.Contains(err.Error(), "INVITE_REQUEST_SENT"):
			return a.approveJoinRequest(bot, chatID, ubID)
		case strings.Contains(err.Error(), "USER_ALREADY_PARTICIPANT"):
		case strings.Contains(err.Error(), "INVITE_HASH_EXPIRED"):
			a.inviteCache.Delete(cacheKey)
			return fmt.Errorf("the invite link has expired, or my assistant (<code>%d</code>) is banned from this group", ubID)
		default:
			return err
		}
	}

	a.UpdateMembership(chatID, ubID, tg.Member)
	return nil
}

func (a *Assistants) approveJoinRequest(bot *tg.Client, chatID, ubID int64) error {
	peer, err := bot.ResolvePeer(chatID)
	if err != nil {
		return err
	}
	user, err := bot.ResolvePeer(ubID)
	if err != nil {
		return err
	}
	inpUser, ok := user.(*tg.InputPeerUser)
	if !ok {
		return errors.New("user peer is not a valid user")
	}
	inputUser := &tg.InputUserObj{UserID: inpUser.UserID, AccessHash: inpUser.AccessHash}
	if _, err = bot.MessagesHideChatJoinRequest(true, peer, inputUser); err != nil {
		gologging.WarnF("Failed to approve the chat join request: %v", err)
		return fmt.Errorf("my assistant (<code>%d</code>) has already requested to join this group", ubID)
	}
	a.UpdateMembership(chatID, ubID, tg.Member)
	return nil
}

// UpdateMembership records the membership status of a user in a chat.
func (a *Assistants) UpdateMembership(chatID, userID int64, status string) {
	a.statusCache.Set(fmt.Sprintf("%d:%d", chatID, userID), status)
}
