// Package catalog provides the immutable reference data for characters and
// weapons. Templates are value types; per-player mutable copies are created by
// the match package so that one player's ammo or cooldown state never affects
// another's.
package catalog

import (
	_ "embed"
	"encoding/json"

	"github.com/lefinal/spikematch/errors"
)

//go:embed characters.json
var charactersJSON []byte

//go:embed weapons.json
var weaponsJSON []byte

// DefaultWeaponID is the weapon assigned to every player on match join. It is
// the lowest tier weapon in the catalog.
const DefaultWeaponID = "classic"

// AbilityTemplate is the immutable definition of a character ability.
type AbilityTemplate struct {
	// ID identifies the ability within its character.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Description is the display description.
	Description string `json:"description"`
	// CooldownSeconds is the cooldown after activation.
	CooldownSeconds float64 `json:"cooldown"`
}

// CharacterTemplate is the immutable definition of a playable character.
type CharacterTemplate struct {
	// ID identifies the character.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Abilities are the character's abilities.
	Abilities []AbilityTemplate `json:"abilities"`
}

// WeaponTemplate is the immutable definition of a weapon.
type WeaponTemplate struct {
	// ID identifies the weapon.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Damage is the flat damage per hit.
	Damage int `json:"damage"`
	// FireRateSeconds is the catalog fire rate in seconds between shots. Not
	// enforced server-side.
	FireRateSeconds float64 `json:"fireRate"`
	// Magazine is the magazine size.
	Magazine int `json:"magazine"`
	// ReloadSeconds is the duration of a reload.
	ReloadSeconds float64 `json:"reloadTime"`
}

// Catalog holds the parsed reference data. Create via New.
type Catalog struct {
	characters     []CharacterTemplate
	charactersByID map[string]CharacterTemplate
	weapons        []WeaponTemplate
	weaponsByID    map[string]WeaponTemplate
}

// New parses the embedded reference data.
func New() (*Catalog, error) {
	c := &Catalog{
		charactersByID: make(map[string]CharacterTemplate),
		weaponsByID:    make(map[string]WeaponTemplate),
	}
	if err := json.Unmarshal(charactersJSON, &c.characters); err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "parse embedded characters", nil)
	}
	if err := json.Unmarshal(weaponsJSON, &c.weapons); err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "parse embedded weapons", nil)
	}
	for _, character := range c.characters {
		c.charactersByID[character.ID] = character
	}
	for _, weapon := range c.weapons {
		c.weaponsByID[weapon.ID] = weapon
	}
	if _, ok := c.weaponsByID[DefaultWeaponID]; !ok {
		return nil, errors.NewInternalError("default weapon missing from catalog",
			errors.Details{"weapon_id": DefaultWeaponID})
	}
	return c, nil
}

// Characters returns all character templates in catalog order.
func (c *Catalog) Characters() []CharacterTemplate {
	characters := make([]CharacterTemplate, len(c.characters))
	copy(characters, c.characters)
	return characters
}

// Weapons returns all weapon templates in catalog order.
func (c *Catalog) Weapons() []WeaponTemplate {
	weapons := make([]WeaponTemplate, len(c.weapons))
	copy(weapons, c.weapons)
	return weapons
}

// Character returns the character template with the given id.
func (c *Catalog) Character(id string) (CharacterTemplate, error) {
	character, ok := c.charactersByID[id]
	if !ok {
		return CharacterTemplate{}, errors.NewNotFoundError("character not found",
			errors.Details{"character_id": id})
	}
	return character, nil
}

// Weapon returns the weapon template with the given id.
func (c *Catalog) Weapon(id string) (WeaponTemplate, error) {
	weapon, ok := c.weaponsByID[id]
	if !ok {
		return WeaponTemplate{}, errors.NewNotFoundError("weapon not found",
			errors.Details{"weapon_id": id})
	}
	return weapon, nil
}
