package services

import (
	"encoding/json"
	"fmt"
	"landmarket-server/models"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

var timeNow = time.Now

// ParseConfidenceThreshold is the minimum extraction confidence for the bot to
// offer a parsed listing for confirmation instead of asking a clarifying
// question. Price plus location is the smallest accepted shape.
const ParseConfidenceThreshold = 0.5

// Sender delivers outbound chat messages. Sends are fire-and-forget; a failed
// send never blocks or rolls back a state transition.
type Sender interface {
	Send(chatID int64, text string) error
}

// IncomingMessage is the transport-neutral shape of one inbound chat event.
type IncomingMessage struct {
	TelegramID  int64
	ChatID      int64
	MessageID   int
	Username    string
	Text        string
	PhotoFileID string
}

func (m IncomingMessage) isCommand() bool {
	return strings.HasPrefix(m.Text, "/")
}

// command returns the name up to the first whitespace, case-sensitive.
func (m IncomingMessage) command() string {
	name, _, _ := strings.Cut(m.Text, " ")
	return name
}

func (m IncomingMessage) commandArgument() string {
	_, arg, _ := strings.Cut(m.Text, " ")
	return strings.TrimSpace(arg)
}

// ConversationContext is the typed payload behind a conversation's JSON
// context column. Empty context (all zero values) is only legal in the idle
// state, and the idle state requires it.
type ConversationContext struct {
	Draft         *ListingInfo `json:"draft,omitempty"`
	PropertyID    uint         `json:"propertyID,omitempty"`
	PendingImages []string     `json:"pendingImages,omitempty"`
}

func (c ConversationContext) isEmpty() bool {
	return c.Draft == nil && c.PropertyID == 0 && len(c.PendingImages) == 0
}

// TelegramBotService drives the multi-turn property intake dialogue. All
// transitions for a given Telegram identity are serialized behind a per-key
// mutex, so two near-simultaneous messages from the same chat cannot
// interleave. No ordering is guaranteed across different identities.
type TelegramBotService struct {
	store  BotStore
	sender Sender

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewTelegramBotService(store BotStore, sender Sender) *TelegramBotService {
	return &TelegramBotService{
		store:  store,
		sender: sender,
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (s *TelegramBotService) identityLock(telegramID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[telegramID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[telegramID] = lock
	}
	return lock
}

func (s *TelegramBotService) reply(msg IncomingMessage, text string) {
	if err := s.sender.Send(msg.ChatID, text); err != nil {
		log.Printf("telegram: failed to send reply to chat %d: %v", msg.ChatID, err)
	}
}

// HandleMessage processes one inbound chat event. Transitions either fully
// apply or leave the conversation untouched: any storage failure is reported
// to the chat and the previous state kept so the user can retry.
func (s *TelegramBotService) HandleMessage(msg IncomingMessage) {
	lock := s.identityLock(msg.TelegramID)
	lock.Lock()
	defer lock.Unlock()

	s.logIncoming(msg)

	conversation, err := s.store.GetOrCreateConversation(msg.TelegramID)
	if err != nil {
		s.reply(msg, "❌ Une erreur est survenue. Veuillez réessayer.")
		return
	}

	context, err := decodeContext(conversation)
	if err != nil {
		// Corrupt context payload: reset rather than wedge the conversation.
		log.Printf("telegram: resetting corrupt context for %d: %v", msg.TelegramID, err)
		s.resetConversation(msg, conversation, "")
		return
	}

	if msg.isCommand() {
		s.handleCommand(msg, conversation, context)
		return
	}

	switch conversation.State {
	case models.ConversationStateAwaitingConfirmation:
		s.handleConfirmation(msg, conversation, context)
	case models.ConversationStateAwaitingDetails:
		s.handleDetails(msg, conversation, context)
	case models.ConversationStateAwaitingImages:
		s.handleImageUpload(msg, conversation, context)
	case models.ConversationStateAwaitingImageChoice:
		s.handleImageSelection(msg, conversation, context)
	default:
		if msg.PhotoFileID != "" {
			// Standalone photo with no submission in flight.
			s.reply(msg, "📷 Photo reçue. Utilisez /add pour créer une annonce avec des images.")
			return
		}
		s.handleFreeText(msg, conversation)
	}
}

func (s *TelegramBotService) logIncoming(msg IncomingMessage) {
	messageType := models.TelegramMessageText
	content := msg.Text
	switch {
	case msg.isCommand():
		messageType = models.TelegramMessageCommand
	case msg.PhotoFileID != "":
		messageType = models.TelegramMessagePhoto
		content = msg.PhotoFileID
	}
	logErr := s.store.LogMessage(&models.TelegramMessage{
		TelegramID:        msg.TelegramID,
		TelegramMessageID: msg.MessageID,
		MessageType:       messageType,
		Content:           content,
	})
	if logErr != nil {
		log.Printf("telegram: failed to log message %d: %v", msg.MessageID, logErr)
	}
}

// saveState persists a transition. On failure the in-memory change is reported
// and the stored state stays what it was, so the caller must not assume the
// transition happened.
func (s *TelegramBotService) saveState(msg IncomingMessage, conversation *models.TelegramConversation, state string, context ConversationContext) bool {
	encoded, err := json.Marshal(context)
	if err != nil {
		s.reply(msg, "❌ Une erreur est survenue. Veuillez réessayer.")
		return false
	}
	previousState, previousContext := conversation.State, conversation.Context
	conversation.State = state
	if context.isEmpty() {
		conversation.Context = nil
	} else {
		conversation.Context = encoded
	}
	if err := s.store.SaveConversation(conversation); err != nil {
		conversation.State, conversation.Context = previousState, previousContext
		s.reply(msg, "❌ Une erreur est survenue. Veuillez réessayer.")
		return false
	}
	return true
}

func (s *TelegramBotService) resetConversation(msg IncomingMessage, conversation *models.TelegramConversation, ack string) {
	if s.saveState(msg, conversation, models.ConversationStateIdle, ConversationContext{}) && ack != "" {
		s.reply(msg, ack)
	}
}

func decodeContext(conversation *models.TelegramConversation) (ConversationContext, error) {
	var context ConversationContext
	if len(conversation.Context) == 0 {
		return context, nil
	}
	err := json.Unmarshal(conversation.Context, &context)
	return context, err
}

// ---- commands ----

func (s *TelegramBotService) handleCommand(msg IncomingMessage, conversation *models.TelegramConversation, context ConversationContext) {
	command := msg.command()

	switch command {
	case "/start":
		s.reply(msg, "👋 Bienvenue sur LandMarket !\n\nLiez votre compte avec /link <code>, puis créez vos annonces avec /add ou en décrivant simplement votre bien.")
		return
	case "/help":
		s.reply(msg, "Commandes disponibles :\n"+
			"/link <code> — lier votre compte LandMarket\n"+
			"/add — créer une annonce étape par étape\n"+
			"/addimage <numéro> — ajouter des photos à une annonce\n"+
			"/list — voir vos propriétés\n"+
			"/status — état de votre compte et de la conversation\n"+
			"/done — terminer l'envoi des photos\n"+
			"/cancel — annuler l'opération en cours")
		return
	case "/link":
		s.handleLink(msg, conversation)
		return
	case "/cancel":
		s.resetConversation(msg, conversation, "Opération annulée.")
		return
	case "/add", "/addimage", "/list", "/status", "/done":
		// Linked-account commands, handled below.
	default:
		s.reply(msg, "Commande inconnue. Utilisez /help pour la liste des commandes.")
		return
	}

	link, err := s.store.LinkByTelegramID(msg.TelegramID)
	if err != nil {
		s.reply(msg, "❌ Une erreur est survenue. Veuillez réessayer.")
		return
	}
	if link == nil {
		s.reply(msg, "❌ Compte non lié.\n\nConnectez-vous sur LandMarket et utilisez /link avec votre code de liaison.")
		return
	}

	switch command {
	case "/add":
		if s.saveState(msg, conversation, models.ConversationStateAwaitingDetails, ConversationContext{Draft: &ListingInfo{PropertyType: "land"}}) {
			s.reply(msg, "🏡 Nouvelle annonce. Décrivez votre bien : localisation, superficie, prix et type (terrain, maison, appartement, local commercial).")
		}
	case "/addimage":
		s.handleAddImage(msg, conversation, link)
	case "/list":
		s.handleList(msg, link)
	case "/status":
		s.reply(msg, fmt.Sprintf("✅ Compte lié (utilisateur #%d).\nÉtat de la conversation : %s", link.UserID, conversation.State))
	case "/done":
		s.handleDone(msg, conversation, context)
	}
}

// handleAddImage reopens photo collection for one of the user's existing
// listings. Ownership is checked through the Telegram link, never trusted
// from the argument.
func (s *TelegramBotService) handleAddImage(msg IncomingMessage, conversation *models.TelegramConversation, link *models.TelegramLink) {
	propertyID, err := strconv.Atoi(msg.commandArgument())
	if err != nil || propertyID <= 0 {
		s.reply(msg, "Utilisation : /addimage <numéro d'annonce>\n\nUtilisez /list pour voir les numéros de vos annonces.")
		return
	}
	property, err := s.store.PropertyForOwner(uint(propertyID), link.UserID)
	if err != nil {
		s.reply(msg, "❌ Une erreur est survenue. Veuillez réessayer.")
		return
	}
	if property == nil {
		s.reply(msg, "❌ Annonce introuvable. Utilisez /list pour voir vos annonces.")
		return
	}
	if s.saveState(msg, conversation, models.ConversationStateAwaitingImages, ConversationContext{PropertyID: property.ID}) {
		s.reply(msg, fmt.Sprintf("📷 Envoyez les photos pour l'annonce #%d, puis /done.", property.ID))
	}
}

func (s *TelegramBotService) handleLink(msg IncomingMessage, conversation *models.TelegramConversation) {
	existing, err := s.store.LinkByTelegramID(msg.TelegramID)
	if err != nil {
		s.reply(msg, "❌ Une erreur est survenue. Veuillez réessayer.")
		return
	}
	if existing != nil {
		s.reply(msg, "Votre compte est déjà lié.")
		return
	}

	codeValue := msg.commandArgument()
	if codeValue == "" {
		s.reply(msg, "Utilisation : /link <code>\n\nGénérez un code de liaison depuis votre profil LandMarket.")
		return
	}

	code, err := s.store.LinkCodeByCode(strings.ToUpper(codeValue))
	if err != nil {
		s.reply(msg, "❌ Une erreur est survenue. Veuillez réessayer.")
		return
	}
	switch {
	case code == nil:
		s.reply(msg, "❌ Code de liaison invalide.")
	case code.IsUsed:
		s.reply(msg, "❌ Ce code a déjà été utilisé.")
	case code.IsExpired(timeNow()):
		s.reply(msg, "❌ Ce code a expiré. Générez-en un nouveau depuis votre profil.")
	default:
		if err := s.store.RedeemLinkCode(code, msg.TelegramID, msg.Username); err != nil {
			s.reply(msg, "❌ Impossible de lier le compte. Veuillez réessayer.")
			return
		}
		s.reply(msg, "✅ Compte lié avec succès ! Utilisez /add pour créer votre première annonce.")
	}
}

func (s *TelegramBotService) handleList(msg IncomingMessage, link *models.TelegramLink) {
	properties, err := s.store.PropertiesByOwner(link.UserID)
	if err != nil {
		s.reply(msg, "❌ Impossible de récupérer vos propriétés.")
		return
	}
	if len(properties) == 0 {
		s.reply(msg, "Vous n'avez aucune propriété. Utilisez /add pour en créer une.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏘 Vos propriétés (%d) :\n", len(properties))
	for _, property := range properties {
		fmt.Fprintf(&b, "• #%d %s — %.0f€, %s\n", property.ID, property.Title, property.Price, property.Location)
	}
	s.reply(msg, b.String())
}

// ---- state handlers ----

var affirmativeReplies = []string{"oui", "yes", "ok", "confirmer", "confirme", "o", "y"}
var negativeReplies = []string{"non", "no", "annuler", "n"}

func isAffirmative(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, candidate := range affirmativeReplies {
		if normalized == candidate {
			return true
		}
	}
	return false
}

func isNegative(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, candidate := range negativeReplies {
		if normalized == candidate {
			return true
		}
	}
	return false
}

func (s *TelegramBotService) handleFreeText(msg IncomingMessage, conversation *models.TelegramConversation) {
	link, err := s.store.LinkByTelegramID(msg.TelegramID)
	if err != nil {
		s.reply(msg, "❌ Une erreur est survenue. Veuillez réessayer.")
		return
	}
	if link == nil {
		s.reply(msg, "❌ Compte non lié.\n\nConnectez-vous sur LandMarket et utilisez /link avec votre code de liaison.")
		return
	}

	info := ParseListing(msg.Text)
	if info.Confidence < ParseConfidenceThreshold {
		s.reply(msg, "🤔 Je n'ai pas bien compris votre annonce.\n\nIndiquez au moins le prix et la localisation, par exemple :\n\"Terrain de 500m² à Yaoundé, prix 25000€\"\n\nOu utilisez /add pour un guidage étape par étape.")
		return
	}

	if s.saveState(msg, conversation, models.ConversationStateAwaitingConfirmation, ConversationContext{Draft: &info}) {
		s.reply(msg, confirmationPrompt(info))
	}
}

func confirmationPrompt(info ListingInfo) string {
	var b strings.Builder
	b.WriteString("📋 Voici ce que j'ai compris :\n")
	if info.Title != "" {
		fmt.Fprintf(&b, "Titre : %s\n", info.Title)
	}
	fmt.Fprintf(&b, "Type : %s\n", typeFrench[info.PropertyType])
	if info.Price != nil {
		fmt.Fprintf(&b, "Prix : %.0f€\n", *info.Price)
	}
	if info.Size != nil {
		fmt.Fprintf(&b, "Superficie : %.0f m²\n", *info.Size)
	}
	if info.Location != nil {
		fmt.Fprintf(&b, "Localisation : %s\n", *info.Location)
	}
	b.WriteString("\nCréer cette annonce ? (oui/non)")
	return b.String()
}

func (s *TelegramBotService) handleConfirmation(msg IncomingMessage, conversation *models.TelegramConversation, context ConversationContext) {
	switch {
	case isNegative(msg.Text):
		s.resetConversation(msg, conversation, "Annonce abandonnée.")
	case isAffirmative(msg.Text):
		s.createPropertyFromDraft(msg, conversation, context)
	default:
		s.reply(msg, "Répondez par oui ou non, ou /cancel pour annuler.")
	}
}

func (s *TelegramBotService) createPropertyFromDraft(msg IncomingMessage, conversation *models.TelegramConversation, context ConversationContext) {
	// Replayed confirmation: the property already exists, do not create twice.
	if context.PropertyID != 0 {
		s.reply(msg, "📷 Envoyez maintenant les photos de votre bien, puis /done.")
		return
	}
	if context.Draft == nil {
		s.resetConversation(msg, conversation, "Aucune annonce en cours. Utilisez /add pour commencer.")
		return
	}

	link, err := s.store.LinkByTelegramID(msg.TelegramID)
	if err != nil || link == nil {
		s.reply(msg, "❌ Compte non lié. Utilisez /link avec votre code de liaison.")
		return
	}

	draft := context.Draft
	property := models.Property{
		OwnerID:      link.UserID,
		Title:        draft.Title,
		Description:  draft.Description,
		PropertyType: draft.PropertyType,
	}
	if property.Title == "" {
		property.Title = typeFrench[draft.PropertyType]
	}
	if draft.Price != nil {
		property.Price = *draft.Price
	}
	if draft.Size != nil {
		property.Size = *draft.Size
	}
	if draft.Location != nil {
		property.Location = *draft.Location
	}

	// Property and state transition commit together, so a retried "oui"
	// either finds the old confirmation state or the replay guard above.
	if err := s.store.CreatePropertyAndAdvance(&property, conversation); err != nil {
		s.reply(msg, "❌ Impossible de créer l'annonce. Veuillez réessayer.")
		return
	}
	s.reply(msg, fmt.Sprintf("✅ Annonce #%d créée !\n\n📷 Envoyez maintenant les photos de votre bien, puis /done.", property.ID))
}

func (s *TelegramBotService) handleDetails(msg IncomingMessage, conversation *models.TelegramConversation, context ConversationContext) {
	if context.Draft == nil {
		context.Draft = &ListingInfo{PropertyType: "land"}
	}
	draft := context.Draft

	info := ParseListing(msg.Text)
	merged := false
	if draft.Price == nil && info.Price != nil {
		draft.Price = info.Price
		merged = true
	}
	if draft.Size == nil && info.Size != nil {
		draft.Size = info.Size
		merged = true
	}
	if draft.Location == nil && info.Location != nil {
		draft.Location = info.Location
		merged = true
	}
	if !draft.TypeMatched && info.TypeMatched {
		draft.PropertyType = info.PropertyType
		draft.TypeMatched = true
		merged = true
	}
	if draft.Description == "" {
		draft.Description = msg.Text
	} else if merged {
		draft.Description = draft.Description + "\n" + msg.Text
	}

	if missing := missingDraftField(draft); missing != "" {
		if !s.saveState(msg, conversation, models.ConversationStateAwaitingDetails, context) {
			return
		}
		if merged {
			s.reply(msg, "Noté. "+missingFieldPrompt(missing))
		} else {
			s.reply(msg, "Je n'ai rien pu extraire de ce message. "+missingFieldPrompt(missing))
		}
		return
	}

	if draft.Title == "" && draft.Location != nil {
		draft.Title = typeFrench[draft.PropertyType] + " à " + *draft.Location
	}
	if s.saveState(msg, conversation, models.ConversationStateAwaitingConfirmation, context) {
		s.reply(msg, confirmationPrompt(*draft))
	}
}

// missingDraftField returns the next required field the draft lacks, in the
// order the bot prompts for them.
func missingDraftField(draft *ListingInfo) string {
	switch {
	case draft.Location == nil:
		return "location"
	case draft.Size == nil:
		return "size"
	case draft.Price == nil:
		return "price"
	}
	return ""
}

func missingFieldPrompt(field string) string {
	switch field {
	case "location":
		return "Où se situe votre bien ? (ex: \"à Yaoundé\")"
	case "size":
		return "Quelle est sa superficie ? (ex: \"500m²\")"
	case "price":
		return "Quel est son prix ? (ex: \"25000€\")"
	}
	return ""
}

func (s *TelegramBotService) handleImageUpload(msg IncomingMessage, conversation *models.TelegramConversation, context ConversationContext) {
	if msg.PhotoFileID == "" {
		s.reply(msg, "Envoyez une photo, ou /done pour terminer.")
		return
	}
	context.PendingImages = append(context.PendingImages, msg.PhotoFileID)
	if s.saveState(msg, conversation, models.ConversationStateAwaitingImages, context) {
		s.reply(msg, fmt.Sprintf("📷 Photo %d reçue. Envoyez-en d'autres ou /done pour terminer.", len(context.PendingImages)))
	}
}

func (s *TelegramBotService) handleDone(msg IncomingMessage, conversation *models.TelegramConversation, context ConversationContext) {
	if conversation.State != models.ConversationStateAwaitingImages {
		s.reply(msg, "Rien à terminer pour le moment.")
		return
	}
	if len(context.PendingImages) == 0 {
		// Nothing pending to attach, the listing already exists.
		s.resetConversation(msg, conversation, "✅ Annonce enregistrée sans photo.")
		return
	}
	if s.saveState(msg, conversation, models.ConversationStateAwaitingImageChoice, context) {
		s.reply(msg, fmt.Sprintf("Quelle photo est la principale ? Répondez par un numéro entre 1 et %d.", len(context.PendingImages)))
	}
}

func (s *TelegramBotService) handleImageSelection(msg IncomingMessage, conversation *models.TelegramConversation, context ConversationContext) {
	selection, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || selection < 1 || selection > len(context.PendingImages) {
		s.reply(msg, fmt.Sprintf("Répondez par un numéro entre 1 et %d, ou /cancel pour annuler.", len(context.PendingImages)))
		return
	}

	images := make([]models.PropertyImage, 0, len(context.PendingImages))
	for i, fileID := range context.PendingImages {
		images = append(images, models.PropertyImage{
			PropertyID: context.PropertyID,
			URL:        fileID,
			IsMain:     i == selection-1,
		})
	}
	// Attach and reset commit together; a replayed selection lands on an
	// idle conversation and cannot duplicate the batch.
	if err := s.store.AttachImagesAndFinish(images, conversation); err != nil {
		s.reply(msg, "❌ Impossible d'enregistrer les photos. Veuillez réessayer.")
		return
	}
	s.reply(msg, fmt.Sprintf("✅ %d photo(s) enregistrée(s). Votre annonce est complète !", len(images)))
}
