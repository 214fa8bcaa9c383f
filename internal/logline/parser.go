package logline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/raidforge/combatlog/internal/intern"
)

// Parser converts decoded log lines into CombatEvent values.
//
// A Parser is not safe for concurrent use by multiple goroutines that share
// the same underlying file: it tracks the previous event's time-of-day to
// resolve midnight wraparound, so lines must be fed in file order. Separate
// Parser instances (e.g. one per worker in a historical fan-out pool) may run
// concurrently provided their outputs are resequenced by LineNumber before
// entering the processor.
type Parser struct {
	date     time.Time // calendar date component, advanced on midnight wrap
	prevTOD  time.Duration
	hasPrev  bool
	table    *intern.Table
}

// NewParser creates a Parser anchored to the log's starting calendar date.
// table may be nil to use the process-global interning table.
func NewParser(startDate time.Time, table *intern.Table) *Parser {
	if table == nil {
		table = intern.Global()
	}
	y, m, d := startDate.Date()
	return &Parser{
		date:  time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		table: table,
	}
}

var lineTimestampRe = regexp.MustCompile(`^\[(\d{2}):(\d{2}):(\d{2})\.(\d{3})\]\s*(.*)$`)

// Parse converts one decoded line into a CombatEvent.
// Returns ok=false for unparseable or intentionally skipped lines; field-level
// failures are absorbed into zero defaults and still yield ok=true.
func (p *Parser) Parse(line string, lineNo LineNumber) (ev CombatEvent, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return CombatEvent{}, false
	}

	m := lineTimestampRe.FindStringSubmatch(line)
	if m == nil {
		// No leading timestamp: purely informational header line.
		return CombatEvent{}, false
	}

	tod, err := timeOfDay(m[1], m[2], m[3], m[4])
	if err != nil {
		return CombatEvent{}, false
	}
	ts := p.resolveTimestamp(tod)

	fields := splitTopLevelBrackets(m[5])
	// Expect: source, target, action, effect, details, threat (any trailing
	// fields may be absent; grammar is positional but tolerant of omission).
	var source, target Entity
	var action Action
	var effect Effect
	var details Details

	if len(fields) > 0 {
		source = parseEntity(fields[0], p.table)
	}
	if len(fields) > 1 {
		target = parseEntity(fields[1], p.table)
	}
	if len(fields) > 2 {
		action = parseAction(fields[2], p.table)
	}
	if len(fields) > 3 {
		effect = parseEffect(fields[3], p.table)
	}
	if len(fields) > 4 {
		details = parseDetails(effect.EffectID, effect.TypeID, fields[4], p.table)
	}
	if len(fields) > 5 {
		if threat := parseThreatField(fields[5]); threat != 0 {
			details.Threat = threat
		}
	}

	return CombatEvent{
		Timestamp:  ts,
		LineNumber: lineNo,
		Source:     source,
		Target:     target,
		Action:     action,
		Effect:     effect,
		Details:    details,
	}, true
}

// resolveTimestamp combines the running calendar date with a time-of-day,
// advancing the date by one day if time-of-day regresses (midnight wrap).
func (p *Parser) resolveTimestamp(tod time.Duration) time.Time {
	if p.hasPrev && tod < p.prevTOD {
		p.date = p.date.AddDate(0, 0, 1)
	}
	p.prevTOD = tod
	p.hasPrev = true
	return p.date.Add(tod)
}

func timeOfDay(hh, mm, ss, ms string) (time.Duration, error) {
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, err
	}
	mn, err := strconv.Atoi(mm)
	if err != nil {
		return 0, err
	}
	s, err := strconv.Atoi(ss)
	if err != nil {
		return 0, err
	}
	millis, err := strconv.Atoi(ms)
	if err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour + time.Duration(mn)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(millis)*time.Millisecond, nil
}

// splitTopLevelBrackets splits "[a] [b] [c]" into ["a", "b", "c"], respecting
// nested brackets/braces so a field's own "{classId}" payload isn't split.
func splitTopLevelBrackets(s string) []string {
	var out []string
	depth := 0
	start := -1
	for i, r := range s {
		switch r {
		case '[':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ']':
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
		}
	}
	return out
}

var (
	companionRe = regexp.MustCompile(`^@([^#]+)#(\d+)/([^ {]+)\s*\{(-?\d+)\}:(-?\d+)(.*)$`)
	playerRe    = regexp.MustCompile(`^@([^#]+)#(\d+)(.*)$`)
	npcRe       = regexp.MustCompile(`^([^{]+?)\s*\{(-?\d+)\}:(-?\d+)(.*)$`)
	hpRe        = regexp.MustCompile(`\((-?\d+)/(-?\d+)\)`)
)

// parseEntity parses the five entity-syntax cases documented in §4.2/§6.1.
func parseEntity(s string, table *intern.Table) Entity {
	s = strings.TrimSpace(s)
	if s == "" {
		return Entity{Kind: EntityEmpty}
	}
	if s == "=" {
		return Entity{Kind: EntitySelfReference}
	}

	if m := companionRe.FindStringSubmatch(s); m != nil {
		classID, _ := strconv.ParseInt(m[4], 10, 64)
		entID, _ := strconv.ParseInt(m[5], 10, 64)
		e := Entity{
			Kind:     EntityCompanion,
			Name:     table.Intern(m[3]), // the companion's own name, not the owner player's
			ClassID:  ClassID(classID),
			EntityID: EntityID(entID),
		}
		applyHPSuffix(&e, m[6])
		return e
	}

	if m := playerRe.FindStringSubmatch(s); m != nil {
		entID, _ := strconv.ParseInt(m[2], 10, 64)
		e := Entity{
			Kind:     EntityPlayer,
			Name:     table.Intern(m[1]),
			EntityID: EntityID(entID),
		}
		applyHPSuffix(&e, m[3])
		return e
	}

	if m := npcRe.FindStringSubmatch(s); m != nil {
		classID, _ := strconv.ParseInt(m[2], 10, 64)
		entID, _ := strconv.ParseInt(m[3], 10, 64)
		e := Entity{
			Kind:     EntityNPC,
			Name:     table.Intern(strings.TrimSpace(m[1])),
			ClassID:  ClassID(classID),
			EntityID: EntityID(entID),
		}
		applyHPSuffix(&e, m[4])
		return e
	}

	// Unrecognized syntax: treat as a bare name with no identifiers rather
	// than dropping the whole line.
	return Entity{Kind: EntityNPC, Name: table.Intern(s)}
}

func applyHPSuffix(e *Entity, tail string) {
	if m := hpRe.FindStringSubmatch(tail); m != nil {
		cur, _ := strconv.ParseInt(m[1], 10, 64)
		max, _ := strconv.ParseInt(m[2], 10, 64)
		e.HPCur = cur
		e.HPMax = max
	}
}

var actionRe = regexp.MustCompile(`^(.*?)\s*\{(-?\d+)\}$`)

func parseAction(s string, table *intern.Table) Action {
	s = strings.TrimSpace(s)
	if s == "" {
		return Action{}
	}
	if m := actionRe.FindStringSubmatch(s); m != nil {
		id, _ := strconv.ParseInt(m[2], 10, 64)
		return Action{ActionID: AbilityID(id), Name: table.Intern(m[1])}
	}
	return Action{Name: table.Intern(s)}
}

var effectRe = regexp.MustCompile(`^(.*?)\s*\{(-?\d+)\}:\s*(.*?)\s*\{(-?\d+)\}$`)

func parseEffect(s string, table *intern.Table) Effect {
	s = strings.TrimSpace(s)
	if s == "" {
		return Effect{}
	}
	if m := effectRe.FindStringSubmatch(s); m != nil {
		effID, _ := strconv.ParseInt(m[2], 10, 64)
		typeID, _ := strconv.ParseInt(m[4], 10, 64)
		return Effect{EffectID: EffectID(effID), TypeID: typeID, EffectName: table.Intern(m[1])}
	}
	return Effect{EffectName: table.Intern(s)}
}

var (
	dmgRe     = regexp.MustCompile(`^(\d+)(\*)?(?:~(\d+))?\s+([A-Za-z]+)\s*\{(-?\d+)\}(?:-(miss|shield|parry|dodge|resist|deflect|))?(?:\s+absorbed\((\d+)\))?(?:\s+reflect)?`)
	healRe    = regexp.MustCompile(`^\((\d+)(\*)?(?:~(\d+))?\)`)
	chargeRe  = regexp.MustCompile(`^\((\d+)\s+charges\s*\{(-?\d+)\}\)`)
	threatRe  = regexp.MustCompile(`<(-?[\d.]+)>`)
)

// parseDetails dispatches on (effectID, typeID) per §4.2. Unknown
// combinations fall through to the zero-value default branch.
func parseDetails(effID EffectID, typeID int64, s string, table *intern.Table) Details {
	s = strings.TrimSpace(s)
	var d Details

	if effID == EffectIDDamage {
		if m := dmgRe.FindStringSubmatch(s); m != nil {
			amount, _ := strconv.ParseInt(m[1], 10, 64)
			d.DmgAmount = amount
			d.IsCrit = m[2] == "*"
			if m[3] != "" {
				eff, _ := strconv.ParseInt(m[3], 10, 64)
				d.DmgEffective = eff
			} else {
				d.DmgEffective = amount
			}
			if m[6] != "" {
				d.AvoidType = table.Intern(m[6])
			}
			defType, _ := strconv.ParseInt(m[5], 10, 64)
			d.DefenseTypeID = defType
			if m[7] != "" {
				abs, _ := strconv.ParseInt(m[7], 10, 64)
				d.DmgAbsorbed = abs
			}
			d.IsReflect = strings.Contains(s, "reflect")
		}
	} else if effID == EffectIDHeal {
		if m := healRe.FindStringSubmatch(s); m != nil {
			amount, _ := strconv.ParseInt(m[1], 10, 64)
			d.HealAmount = amount
			d.IsCrit = m[2] == "*"
			if m[3] != "" {
				eff, _ := strconv.ParseInt(m[3], 10, 64)
				d.HealEffective = eff
			} else {
				d.HealEffective = amount
			}
		}
	} else if m := chargeRe.FindStringSubmatch(s); m != nil {
		charges, _ := strconv.ParseInt(m[1], 10, 32)
		d.Charges = int32(charges)
		d.HasCharges = true
		id, _ := strconv.ParseInt(m[2], 10, 64)
		d.AbilityID = AbilityID(id)
	}
	// else: default branch, zero-valued Details (absorbed per §7 ParseSkip policy).

	d.Threat = parseThreatField(s)
	return d
}

func parseThreatField(s string) float64 {
	if m := threatRe.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v
		}
	}
	return 0
}
