// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage implements MeshChain's atomic-write, hash-verified
// block and transaction store (spec.md §4.12). Every block/tx is
// exclusively owned by this package once persisted; callers only ever
// see read-only copies.
package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/meshchain/meshchain/chain"
	"github.com/meshchain/meshchain/crypto"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	dirBlocks       = "blocks"
	dirMetadata     = "metadata"
	dirTransactions = "transactions"
	dirUTXOs        = "utxos"
	stateFileName   = "state.json"
	indexDirName    = "index"

	storageVersion = "1"

	defaultCacheEntries = 256
)

// Store is the single long-lived instance of the storage engine a node
// process owns (spec.md §5 Global state).
type Store struct {
	baseDir string
	index   *leveldb.DB

	blockCache *countingCache
	utxoCache  *countingCache

	latestHeight uint32
	latestHash   chain.BlockHash
	haveTip      bool

	corruptions uint64
}

// NewStore opens (or creates) a store rooted at baseDir, sized for
// cacheEntries block/UTXO cache entries apiece.
func NewStore(baseDir string, cacheEntries int) (*Store, error) {
	if cacheEntries <= 0 {
		cacheEntries = defaultCacheEntries
	}
	for _, sub := range []string{dirBlocks, dirMetadata, dirTransactions, dirUTXOs} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("storage: creating %s: %w", sub, err)
		}
	}

	idx, err := leveldb.OpenFile(filepath.Join(baseDir, indexDirName), nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening secondary index: %w", err)
	}

	s := &Store{
		baseDir:    baseDir,
		index:      idx,
		blockCache: newCountingCache(cacheEntries),
		utxoCache:  newCountingCache(cacheEntries),
	}

	if st, err := s.readState(); err == nil {
		s.latestHeight = st.LatestBlockHeight
		s.haveTip = true
		if meta, err := s.readMetadata(st.LatestBlockHeight); err == nil {
			if h, err := hex.DecodeString(meta.BlockHash); err == nil && len(h) == chain.BlockHashSize {
				copy(s.latestHash[:], h)
			}
		}
	}

	return s, nil
}

// Close releases the secondary index handle.
func (s *Store) Close() error {
	return s.index.Close()
}

func (s *Store) blockPath(height uint32) string {
	return filepath.Join(s.baseDir, dirBlocks, fmt.Sprintf("%06d.bin", height))
}

func (s *Store) metadataPath(height uint32) string {
	return filepath.Join(s.baseDir, dirMetadata, fmt.Sprintf("%06d.json", height))
}

func (s *Store) txPath(hash chain.TxID) string {
	return filepath.Join(s.baseDir, dirTransactions, hex.EncodeToString(hash[:])+".bin")
}

func (s *Store) txIndexPath(hash chain.TxID) string {
	return filepath.Join(s.baseDir, dirTransactions, hex.EncodeToString(hash[:])+".json")
}

func (s *Store) statePath() string {
	return filepath.Join(s.baseDir, stateFileName)
}

// AddBlock persists a block at height, verifying its bytes hash to
// hash and that it chains from the previous block's recorded hash
// (spec.md §4.12 add_block).
func (s *Store) AddBlock(height uint32, hash chain.BlockHash, bytes []byte, prevHash chain.BlockHash) error {
	if len(bytes) == 0 {
		return ErrEmptyBlock
	}
	if hash != crypto.Hash160(bytes) {
		return ErrHashMismatch
	}
	if height > 0 {
		prevMeta, err := s.readMetadata(height - 1)
		if err != nil {
			return fmt.Errorf("storage: loading metadata for height %d: %w", height-1, err)
		}
		if prevMeta.BlockHash != hex.EncodeToString(prevHash[:]) {
			return ErrPreviousHashBreak
		}
	}

	b, err := chain.DecodeBlock(bytes)
	if err != nil {
		return fmt.Errorf("storage: decoding block for metadata: %w", err)
	}

	meta := blockMetadata{
		Height:       height,
		BlockHash:    hex.EncodeToString(hash[:]),
		Timestamp:    b.Timestamp,
		Size:         len(bytes),
		TxCount:      len(b.Transactions),
		PreviousHash: hex.EncodeToString(prevHash[:]),
	}

	if err := atomicWriteFile(s.blockPath(height), bytes); err != nil {
		return err
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(s.metadataPath(height), metaBytes); err != nil {
		return err
	}

	s.blockCache.add(height, bytes)

	if !s.haveTip || height > s.latestHeight {
		s.latestHeight = height
		s.latestHash = hash
		s.haveTip = true
		if err := s.writeState(); err != nil {
			return err
		}
	}
	return nil
}

// GetBlock reads the block at height, recomputing and checking its
// hash against the recorded metadata (spec.md §4.12 get_block). A
// mismatch returns ErrCorrupted and bumps the corruption counter.
func (s *Store) GetBlock(height uint32) ([]byte, error) {
	if cached, ok := s.blockCache.get(height); ok {
		return cached.([]byte), nil
	}

	bytes, err := os.ReadFile(s.blockPath(height))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	meta, err := s.readMetadata(height)
	if err != nil {
		return nil, err
	}
	got := crypto.Hash160(bytes)
	if hex.EncodeToString(got[:]) != meta.BlockHash {
		s.corruptions++
		return nil, ErrCorrupted
	}
	s.blockCache.add(height, bytes)
	return bytes, nil
}

func (s *Store) readMetadata(height uint32) (blockMetadata, error) {
	raw, err := os.ReadFile(s.metadataPath(height))
	if err != nil {
		return blockMetadata{}, err
	}
	var meta blockMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return blockMetadata{}, err
	}
	return meta, nil
}

// AddTransaction persists a transaction's bytes, requiring the block it
// claims to belong to already exist (spec.md §4.12 add_transaction). It
// also records a fast lookup entry in the secondary index keyed by
// transaction hash.
func (s *Store) AddTransaction(txHash chain.TxID, blockHeight uint32, bytes []byte, timestamp uint16) error {
	if _, err := s.readMetadata(blockHeight); err != nil {
		return ErrBlockMissingParent
	}

	idx := txIndex{
		TxHash:      hex.EncodeToString(txHash[:]),
		BlockHeight: blockHeight,
		Timestamp:   timestamp,
		Size:        len(bytes),
	}
	idxBytes, err := json.Marshal(idx)
	if err != nil {
		return err
	}

	if err := atomicWriteFile(s.txPath(txHash), bytes); err != nil {
		return err
	}
	if err := atomicWriteFile(s.txIndexPath(txHash), idxBytes); err != nil {
		return err
	}
	return s.index.Put(txIndexKey(txHash), heightBytes(blockHeight), nil)
}

// GetTransaction returns a previously stored transaction's raw bytes.
func (s *Store) GetTransaction(txHash chain.TxID) ([]byte, error) {
	bytes, err := os.ReadFile(s.txPath(txHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return bytes, nil
}

// TransactionBlockHeight looks up the height of the block that
// persisted txHash, served from the secondary index rather than
// re-parsing the sidecar JSON.
func (s *Store) TransactionBlockHeight(txHash chain.TxID) (uint32, error) {
	v, err := s.index.Get(txIndexKey(txHash), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return 0, ErrTxNotFound
		}
		return 0, err
	}
	return bytesToHeight(v), nil
}

// IndexUTXO records addr -> id in the secondary index so that
// enumerating a stealth address's outputs does not require scanning
// utxos/ on disk.
func (s *Store) IndexUTXO(addr [chain.StealthAddrSize]byte, id chain.UTXOID) error {
	return s.index.Put(utxoIndexKey(addr, id), nil, nil)
}

// UTXOIDsForAddress returns the ids previously recorded via IndexUTXO
// for addr.
func (s *Store) UTXOIDsForAddress(addr [chain.StealthAddrSize]byte) ([]chain.UTXOID, error) {
	prefix := utxoIndexPrefix(addr)
	iter := s.index.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var ids []chain.UTXOID
	for iter.Next() {
		key := iter.Key()
		var id chain.UTXOID
		copy(id[:], key[len(prefix):])
		ids = append(ids, id)
	}
	return ids, iter.Error()
}

// PutUTXO persists u as a JSON file and indexes it by address.
func (s *Store) PutUTXO(u *chain.UTXO) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	path := filepath.Join(s.baseDir, dirUTXOs, hex.EncodeToString(u.ID[:])+".json")
	if err := atomicWriteFile(path, raw); err != nil {
		return err
	}
	s.utxoCache.add(u.ID, u)
	return s.IndexUTXO(u.StealthAddress, u.ID)
}

// GetUTXO reads a UTXO by id.
func (s *Store) GetUTXO(id chain.UTXOID) (*chain.UTXO, error) {
	if cached, ok := s.utxoCache.get(id); ok {
		return cached.(*chain.UTXO), nil
	}
	path := filepath.Join(s.baseDir, dirUTXOs, hex.EncodeToString(id[:])+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var u chain.UTXO
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	s.utxoCache.add(id, &u)
	return &u, nil
}

// BlockCacheStats and UTXOCacheStats expose the hit/miss counters
// spec.md §4.12 requires write-through caches to report.
func (s *Store) BlockCacheStats() CacheStats { return s.blockCache.stats() }
func (s *Store) UTXOCacheStats() CacheStats  { return s.utxoCache.stats() }

func (s *Store) readState() (stateFile, error) {
	raw, err := os.ReadFile(s.statePath())
	if err != nil {
		return stateFile{}, err
	}
	var st stateFile
	if err := json.Unmarshal(raw, &st); err != nil {
		return stateFile{}, err
	}
	return st, nil
}

func (s *Store) writeState() error {
	meta, err := s.readMetadata(s.latestHeight)
	var ts uint16
	if err == nil {
		ts = meta.Timestamp
	}
	st := stateFile{
		LatestBlockHeight: s.latestHeight,
		Timestamp:         ts,
		Version:           storageVersion,
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return atomicWriteFile(s.statePath(), raw)
}

// VerifyChainIntegrity walks blocks/ in height order, checking every
// block's hash and previous_hash continuity, and every transaction
// index's back-reference to its owning block (spec.md §4.12).
func (s *Store) VerifyChainIntegrity() (*IntegrityReport, error) {
	report := &IntegrityReport{IsValid: true}

	heights, err := s.sortedBlockHeights()
	if err != nil {
		return nil, err
	}

	var prevMeta *blockMetadata
	for _, height := range heights {
		report.BlocksChecked++
		bytes, err := os.ReadFile(s.blockPath(height))
		if err != nil {
			report.BlocksCorrupted++
			report.IsValid = false
			continue
		}
		meta, err := s.readMetadata(height)
		if err != nil {
			report.BlocksCorrupted++
			report.IsValid = false
			continue
		}
		got := crypto.Hash160(bytes)
		if hex.EncodeToString(got[:]) != meta.BlockHash {
			report.BlocksCorrupted++
			report.IsValid = false
			continue
		}
		if prevMeta != nil && meta.PreviousHash != prevMeta.BlockHash {
			report.BlocksCorrupted++
			report.IsValid = false
		}
		m := meta
		prevMeta = &m
	}

	txEntries, err := filepath.Glob(filepath.Join(s.baseDir, dirTransactions, "*.json"))
	if err != nil {
		return nil, err
	}
	for _, entry := range txEntries {
		report.TransactionsChecked++
		raw, err := os.ReadFile(entry)
		if err != nil {
			report.TransactionsOrphaned++
			report.IsValid = false
			continue
		}
		var idx txIndex
		if err := json.Unmarshal(raw, &idx); err != nil {
			report.TransactionsOrphaned++
			report.IsValid = false
			continue
		}
		if _, err := s.readMetadata(idx.BlockHeight); err != nil {
			report.TransactionsOrphaned++
			report.IsValid = false
		}
	}

	return report, nil
}

func (s *Store) sortedBlockHeights() ([]uint32, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, dirBlocks))
	if err != nil {
		return nil, err
	}
	heights := make([]uint32, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".bin" {
			continue
		}
		n, err := strconv.ParseUint(name[:len(name)-len(".bin")], 10, 32)
		if err != nil {
			continue
		}
		heights = append(heights, uint32(n))
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights, nil
}

// PruneBelow removes block and metadata files below height, once the
// caller has checkpointed past them; it never relaxes an integrity
// invariant, it simply makes pruned heights absent rather than
// retrievable (the ESP32 gateway's microSD budget requires this --
// see the design ledger's supplemented-features note).
func (s *Store) PruneBelow(height uint32) error {
	heights, err := s.sortedBlockHeights()
	if err != nil {
		return err
	}
	for _, h := range heights {
		if h >= height {
			break
		}
		os.Remove(s.blockPath(h))
		os.Remove(s.metadataPath(h))
		s.blockCache.remove(h)
	}
	return nil
}

func txIndexKey(hash chain.TxID) []byte {
	return append([]byte("tx:"), hash[:]...)
}

func heightBytes(height uint32) []byte {
	return []byte(strconv.FormatUint(uint64(height), 10))
}

func bytesToHeight(b []byte) uint32 {
	n, _ := strconv.ParseUint(string(b), 10, 32)
	return uint32(n)
}

func utxoIndexPrefix(addr [chain.StealthAddrSize]byte) []byte {
	return append([]byte("utxoaddr:"), addr[:]...)
}

func utxoIndexKey(addr [chain.StealthAddrSize]byte, id chain.UTXOID) []byte {
	key := utxoIndexPrefix(addr)
	return append(key, id[:]...)
}
