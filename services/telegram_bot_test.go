package services

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"landmarket-server/models"
)

type fakeBotStore struct {
	link         *models.TelegramLink
	codes        map[string]*models.TelegramLinkCode
	conversation *models.TelegramConversation
	properties   []*models.Property
	images       []models.PropertyImage
	messages     []models.TelegramMessage

	saveErr   error
	createErr error
	attachErr error

	cleanupConversations []*models.TelegramConversation

	nextPropertyID uint
}

func newFakeBotStore() *fakeBotStore {
	return &fakeBotStore{
		codes:          map[string]*models.TelegramLinkCode{},
		nextPropertyID: 1,
	}
}

func (f *fakeBotStore) LinkByTelegramID(telegramID int64) (*models.TelegramLink, error) {
	if f.link != nil && f.link.TelegramID == telegramID {
		return f.link, nil
	}
	return nil, nil
}

func (f *fakeBotStore) LinkCodeByCode(code string) (*models.TelegramLinkCode, error) {
	return f.codes[code], nil
}

func (f *fakeBotStore) RedeemLinkCode(code *models.TelegramLinkCode, telegramID int64, username string) error {
	code.IsUsed = true
	code.TelegramID = &telegramID
	f.link = &models.TelegramLink{
		UserID:           code.UserID,
		TelegramID:       telegramID,
		TelegramUsername: username,
	}
	return nil
}

func (f *fakeBotStore) GetOrCreateConversation(telegramID int64) (*models.TelegramConversation, error) {
	if f.conversation == nil {
		f.conversation = &models.TelegramConversation{
			TelegramID: telegramID,
			State:      models.ConversationStateIdle,
		}
	}
	return f.conversation, nil
}

func (f *fakeBotStore) SaveConversation(conversation *models.TelegramConversation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.conversation = conversation
	return nil
}

func (f *fakeBotStore) CreatePropertyAndAdvance(property *models.Property, conversation *models.TelegramConversation) error {
	if f.createErr != nil {
		return f.createErr
	}
	property.ID = f.nextPropertyID
	f.nextPropertyID++
	f.properties = append(f.properties, property)
	encoded, err := json.Marshal(ConversationContext{PropertyID: property.ID})
	if err != nil {
		return err
	}
	conversation.State = models.ConversationStateAwaitingImages
	conversation.Context = encoded
	f.conversation = conversation
	return nil
}

func (f *fakeBotStore) AttachImagesAndFinish(images []models.PropertyImage, conversation *models.TelegramConversation) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.images = append(f.images, images...)
	conversation.State = models.ConversationStateIdle
	conversation.Context = nil
	f.conversation = conversation
	return nil
}

func (f *fakeBotStore) PropertyForOwner(propertyID, userID uint) (*models.Property, error) {
	for _, property := range f.properties {
		if property.ID == propertyID && property.OwnerID == userID {
			return property, nil
		}
	}
	return nil, nil
}

func (f *fakeBotStore) PropertiesByOwner(userID uint) ([]models.Property, error) {
	var out []models.Property
	for _, property := range f.properties {
		if property.OwnerID == userID {
			out = append(out, *property)
		}
	}
	return out, nil
}

func (f *fakeBotStore) LogMessage(message *models.TelegramMessage) error {
	f.messages = append(f.messages, *message)
	return nil
}

func (f *fakeBotStore) CountStaleConversations(cutoff time.Time) (int64, error) {
	var count int64
	for _, conversation := range f.cleanupConversations {
		if conversation.State != models.ConversationStateIdle && conversation.UpdatedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (f *fakeBotStore) ResetStaleConversations(cutoff time.Time) (int64, error) {
	var count int64
	for _, conversation := range f.cleanupConversations {
		if conversation.State != models.ConversationStateIdle && conversation.UpdatedAt.Before(cutoff) {
			conversation.State = models.ConversationStateIdle
			conversation.Context = nil
			count++
		}
	}
	return count, nil
}

func (f *fakeBotStore) CountExpiredLinkCodes(now time.Time) (int64, error) {
	var count int64
	for _, code := range f.codes {
		if !code.IsUsed && code.IsExpired(now) {
			count++
		}
	}
	return count, nil
}

func (f *fakeBotStore) DeleteExpiredLinkCodes(now time.Time) (int64, error) {
	var count int64
	for key, code := range f.codes {
		if !code.IsUsed && code.IsExpired(now) {
			delete(f.codes, key)
			count++
		}
	}
	return count, nil
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(chatID int64, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func linkedStore() *fakeBotStore {
	store := newFakeBotStore()
	store.link = &models.TelegramLink{UserID: 42, TelegramID: 100}
	return store
}

func textMessage(text string) IncomingMessage {
	return IncomingMessage{TelegramID: 100, ChatID: 100, MessageID: 1, Text: text}
}

func photoMessage(fileID string) IncomingMessage {
	return IncomingMessage{TelegramID: 100, ChatID: 100, MessageID: 1, PhotoFileID: fileID}
}

func decodeTestContext(t *testing.T, store *fakeBotStore) ConversationContext {
	t.Helper()
	var context ConversationContext
	if len(store.conversation.Context) == 0 {
		return context
	}
	if err := json.Unmarshal(store.conversation.Context, &context); err != nil {
		t.Fatalf("context did not decode: %v", err)
	}
	return context
}

func TestFreeTextUnlinkedIsRejected(t *testing.T) {
	store := newFakeBotStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("Terrain de 500m² à Yaoundé, prix 25000€."))

	if !strings.Contains(sender.last(), "Compte non lié") {
		t.Fatalf("expected the unlinked rejection, got %q", sender.last())
	}
	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("state must stay idle, got %s", store.conversation.State)
	}
}

func TestFreeTextLowConfidenceAsksForClarification(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("Bonjour !"))

	if !strings.Contains(sender.last(), "pas bien compris") {
		t.Fatalf("expected a clarifying question, got %q", sender.last())
	}
	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("state must stay idle, got %s", store.conversation.State)
	}
}

func TestFreeTextIntakeFullFlow(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("Terrain de 500m² à Yaoundé, prix 25000€."))
	if store.conversation.State != models.ConversationStateAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", store.conversation.State)
	}
	if !strings.Contains(sender.last(), "oui/non") {
		t.Fatalf("expected the confirmation prompt, got %q", sender.last())
	}

	bot.HandleMessage(textMessage("oui"))
	if len(store.properties) != 1 {
		t.Fatalf("expected one property created, got %d", len(store.properties))
	}
	property := store.properties[0]
	if property.OwnerID != 42 {
		t.Fatalf("property owner must come from the link, got %d", property.OwnerID)
	}
	if property.PropertyType != "land" || property.Price != 25000 || property.Size != 500 {
		t.Fatalf("extracted fields lost on creation: %+v", property)
	}
	if store.conversation.State != models.ConversationStateAwaitingImages {
		t.Fatalf("expected awaiting images, got %s", store.conversation.State)
	}
	if decodeTestContext(t, store).PropertyID != property.ID {
		t.Fatal("context must carry the created property id")
	}

	bot.HandleMessage(photoMessage("file-1"))
	bot.HandleMessage(photoMessage("file-2"))
	if got := decodeTestContext(t, store).PendingImages; len(got) != 2 {
		t.Fatalf("expected 2 pending images, got %d", len(got))
	}

	bot.HandleMessage(textMessage("/done"))
	if store.conversation.State != models.ConversationStateAwaitingImageChoice {
		t.Fatalf("expected awaiting image selection, got %s", store.conversation.State)
	}

	bot.HandleMessage(textMessage("2"))
	if len(store.images) != 2 {
		t.Fatalf("expected 2 images persisted, got %d", len(store.images))
	}
	if store.images[0].IsMain || !store.images[1].IsMain {
		t.Fatalf("expected the second image to be main, got %+v", store.images)
	}
	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("flow must end idle, got %s", store.conversation.State)
	}
	if len(store.conversation.Context) != 0 {
		t.Fatal("idle conversation must have an empty context")
	}
}

func TestConfirmationReplayCreatesNothing(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	encoded, _ := json.Marshal(ConversationContext{PropertyID: 7})
	store.conversation = &models.TelegramConversation{
		TelegramID: 100,
		State:      models.ConversationStateAwaitingConfirmation,
		Context:    encoded,
	}

	bot.HandleMessage(textMessage("oui"))

	if len(store.properties) != 0 {
		t.Fatalf("replayed confirmation must not create a property, got %d", len(store.properties))
	}
	if !strings.Contains(sender.last(), "photos") {
		t.Fatalf("expected the photo prompt again, got %q", sender.last())
	}
}

func TestConfirmationDeclineResets(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("Maison de 120m² à Douala, prix 80000€"))
	bot.HandleMessage(textMessage("non"))

	if len(store.properties) != 0 {
		t.Fatal("declined confirmation must not create a property")
	}
	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("expected idle after decline, got %s", store.conversation.State)
	}
}

func TestGuidedAddFlow(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("/add"))
	if store.conversation.State != models.ConversationStateAwaitingDetails {
		t.Fatalf("expected awaiting details, got %s", store.conversation.State)
	}

	bot.HandleMessage(textMessage("situé à Douala"))
	if !strings.Contains(sender.last(), "superficie") {
		t.Fatalf("expected the size prompt next, got %q", sender.last())
	}

	bot.HandleMessage(textMessage("superficie: 300 m²"))
	if !strings.Contains(sender.last(), "prix") {
		t.Fatalf("expected the price prompt next, got %q", sender.last())
	}

	bot.HandleMessage(textMessage("prix 10000€"))
	if store.conversation.State != models.ConversationStateAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", store.conversation.State)
	}

	draft := decodeTestContext(t, store).Draft
	if draft == nil {
		t.Fatal("expected an accumulated draft in the context")
	}
	if draft.Title != "Terrain à Douala" {
		t.Fatalf("expected synthesized title, got %q", draft.Title)
	}
	if draft.Price == nil || *draft.Price != 10000 {
		t.Fatalf("expected merged price 10000, got %v", draft.Price)
	}
}

func TestCommandsRequireLink(t *testing.T) {
	store := newFakeBotStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	for _, command := range []string{"/add", "/addimage 1", "/list", "/status", "/done"} {
		bot.HandleMessage(textMessage(command))
		if !strings.Contains(sender.last(), "Compte non lié") {
			t.Fatalf("%s should be rejected while unlinked, got %q", command, sender.last())
		}
	}

	// Informational commands still work unlinked.
	bot.HandleMessage(textMessage("/help"))
	if !strings.Contains(sender.last(), "/link") {
		t.Fatalf("/help must answer while unlinked, got %q", sender.last())
	}
}

func TestUnknownCommandAnswersRegardlessOfLink(t *testing.T) {
	store := newFakeBotStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("/frobnicate"))
	if !strings.Contains(sender.last(), "Commande inconnue") {
		t.Fatalf("unlinked unknown command must get the unknown reply, got %q", sender.last())
	}

	store.link = &models.TelegramLink{UserID: 42, TelegramID: 100}
	bot.HandleMessage(textMessage("/frobnicate"))
	if !strings.Contains(sender.last(), "Commande inconnue") {
		t.Fatalf("linked unknown command must get the unknown reply, got %q", sender.last())
	}
}

func TestAddImageToExistingListing(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	store.properties = append(store.properties, &models.Property{OwnerID: 42, Title: "Terrain à Yaoundé"})
	store.properties[0].ID = 9

	bot.HandleMessage(textMessage("/addimage 9"))
	if store.conversation.State != models.ConversationStateAwaitingImages {
		t.Fatalf("expected awaiting images, got %s", store.conversation.State)
	}
	if decodeTestContext(t, store).PropertyID != 9 {
		t.Fatal("context must carry the selected property id")
	}

	bot.HandleMessage(photoMessage("extra-1"))
	bot.HandleMessage(textMessage("/done"))
	bot.HandleMessage(textMessage("1"))

	if len(store.images) != 1 || store.images[0].PropertyID != 9 {
		t.Fatalf("expected one image on property 9, got %+v", store.images)
	}
	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("expected idle after attaching, got %s", store.conversation.State)
	}
}

func TestAddImageRejectsForeignOrMissingListing(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	foreign := &models.Property{OwnerID: 7, Title: "Maison à Douala"}
	foreign.ID = 3
	store.properties = append(store.properties, foreign)

	bot.HandleMessage(textMessage("/addimage 3"))
	if !strings.Contains(sender.last(), "introuvable") {
		t.Fatalf("someone else's listing must be treated as absent, got %q", sender.last())
	}
	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("state must stay idle, got %s", store.conversation.State)
	}

	bot.HandleMessage(textMessage("/addimage"))
	if !strings.Contains(sender.last(), "Utilisation") {
		t.Fatalf("missing argument must show the usage, got %q", sender.last())
	}
}

func TestCancelResetsAnyState(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("/add"))
	bot.HandleMessage(textMessage("/cancel"))

	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("expected idle after /cancel, got %s", store.conversation.State)
	}
	if len(store.conversation.Context) != 0 {
		t.Fatal("expected an empty context after /cancel")
	}
	if !strings.Contains(sender.last(), "annulée") {
		t.Fatalf("expected the cancel acknowledgement, got %q", sender.last())
	}
}

func TestLinkCodeRedemption(t *testing.T) {
	store := newFakeBotStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	store.codes["EXPIRED1"] = &models.TelegramLinkCode{
		UserID: 7, Code: "EXPIRED1", ExpiresAt: time.Now().Add(-time.Minute),
	}
	store.codes["USEDCODE"] = &models.TelegramLinkCode{
		UserID: 7, Code: "USEDCODE", IsUsed: true, ExpiresAt: time.Now().Add(time.Hour),
	}
	store.codes["GOODCODE"] = &models.TelegramLinkCode{
		UserID: 7, Code: "GOODCODE", ExpiresAt: time.Now().Add(time.Hour),
	}

	bot.HandleMessage(textMessage("/link NOPE"))
	if !strings.Contains(sender.last(), "invalide") {
		t.Fatalf("unknown code must be invalid, got %q", sender.last())
	}

	bot.HandleMessage(textMessage("/link expired1"))
	if !strings.Contains(sender.last(), "expiré") {
		t.Fatalf("expired code must be reported, got %q", sender.last())
	}

	bot.HandleMessage(textMessage("/link USEDCODE"))
	if !strings.Contains(sender.last(), "déjà été utilisé") {
		t.Fatalf("used code must be reported, got %q", sender.last())
	}

	bot.HandleMessage(textMessage("/link goodcode"))
	if !strings.Contains(sender.last(), "✅") {
		t.Fatalf("valid code must link, got %q", sender.last())
	}
	if store.link == nil || store.link.UserID != 7 || store.link.TelegramID != 100 {
		t.Fatalf("expected a link for user 7, got %+v", store.link)
	}
	if !store.codes["GOODCODE"].IsUsed {
		t.Fatal("redeemed code must be marked used")
	}

	bot.HandleMessage(textMessage("/link GOODCODE"))
	if !strings.Contains(sender.last(), "déjà lié") {
		t.Fatalf("second /link must report already linked, got %q", sender.last())
	}
}

func TestStoreFailureKeepsState(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	store.saveErr = errors.New("db down")
	bot.HandleMessage(textMessage("/add"))

	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("failed save must keep the previous state, got %s", store.conversation.State)
	}
	if !strings.Contains(sender.last(), "réessayer") {
		t.Fatalf("expected a retry message, got %q", sender.last())
	}

	store.saveErr = nil
	bot.HandleMessage(textMessage("/add"))
	if store.conversation.State != models.ConversationStateAwaitingDetails {
		t.Fatalf("retry after recovery must transition, got %s", store.conversation.State)
	}
}

func TestCreateFailureKeepsConfirmationState(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("Terrain de 500m² à Yaoundé, prix 25000€."))
	store.createErr = errors.New("db down")

	bot.HandleMessage(textMessage("oui"))
	if store.conversation.State != models.ConversationStateAwaitingConfirmation {
		t.Fatalf("failed creation must keep awaiting confirmation, got %s", store.conversation.State)
	}
	if len(store.properties) != 0 {
		t.Fatalf("failed creation must persist nothing, got %d properties", len(store.properties))
	}

	store.createErr = nil
	bot.HandleMessage(textMessage("oui"))
	if len(store.properties) != 1 {
		t.Fatalf("retried confirmation must create exactly one property, got %d", len(store.properties))
	}
	if store.conversation.State != models.ConversationStateAwaitingImages {
		t.Fatalf("expected awaiting images after the retry, got %s", store.conversation.State)
	}

	bot.HandleMessage(textMessage("oui"))
	if len(store.properties) != 1 {
		t.Fatalf("a stray confirmation after creation must not create again, got %d", len(store.properties))
	}
}

func TestImageSelectionFailureThenRetryAttachesOnce(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("Terrain de 500m² à Yaoundé, prix 25000€."))
	bot.HandleMessage(textMessage("oui"))
	bot.HandleMessage(photoMessage("file-1"))
	bot.HandleMessage(photoMessage("file-2"))
	bot.HandleMessage(textMessage("/done"))

	store.attachErr = errors.New("db down")
	bot.HandleMessage(textMessage("1"))
	if len(store.images) != 0 {
		t.Fatalf("failed attach must persist nothing, got %d images", len(store.images))
	}
	if store.conversation.State != models.ConversationStateAwaitingImageChoice {
		t.Fatalf("failed attach must keep the selection state, got %s", store.conversation.State)
	}

	store.attachErr = nil
	bot.HandleMessage(textMessage("1"))
	if len(store.images) != 2 {
		t.Fatalf("retried selection must attach each photo once, got %d images", len(store.images))
	}
	mains := 0
	for _, image := range store.images {
		if image.IsMain {
			mains++
		}
	}
	if mains != 1 {
		t.Fatalf("exactly one image must be main, got %d", mains)
	}
	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("expected idle after the retry, got %s", store.conversation.State)
	}

	bot.HandleMessage(textMessage("1"))
	if len(store.images) != 2 {
		t.Fatalf("a replayed selection must not attach again, got %d images", len(store.images))
	}
}

func TestStandalonePhotoWhileIdle(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(photoMessage("lonely-photo"))

	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("a stray photo must not change state, got %s", store.conversation.State)
	}
	if !strings.Contains(sender.last(), "/add") {
		t.Fatalf("expected the /add hint, got %q", sender.last())
	}
}

func TestDoneWithoutImagesFinishesListing(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	bot.HandleMessage(textMessage("Terrain de 500m² à Yaoundé, prix 25000€."))
	bot.HandleMessage(textMessage("oui"))
	bot.HandleMessage(textMessage("/done"))

	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("expected idle after /done with no photos, got %s", store.conversation.State)
	}
	if len(store.properties) != 1 {
		t.Fatalf("the property from confirmation must survive, got %d", len(store.properties))
	}
	if len(store.images) != 0 {
		t.Fatalf("no images expected, got %d", len(store.images))
	}
	if !strings.Contains(sender.last(), "sans photo") {
		t.Fatalf("expected the no-photo acknowledgement, got %q", sender.last())
	}
}

func TestCorruptContextResets(t *testing.T) {
	store := linkedStore()
	sender := &fakeSender{}
	bot := NewTelegramBotService(store, sender)

	store.conversation = &models.TelegramConversation{
		TelegramID: 100,
		State:      models.ConversationStateAwaitingConfirmation,
		Context:    []byte("{not json"),
	}

	bot.HandleMessage(textMessage("oui"))

	if store.conversation.State != models.ConversationStateIdle {
		t.Fatalf("corrupt context must reset to idle, got %s", store.conversation.State)
	}
	if len(store.conversation.Context) != 0 {
		t.Fatal("reset conversation must have an empty context")
	}
}
